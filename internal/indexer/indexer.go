// Package indexer keeps the in-memory vector index in sync with the metadata store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

// Synchronizer owns the vector index and its position-to-document-id mapping.
// Inserts write metadata first and append the vector second; the two stores share no
// transaction, and RebuildFromStore is the only way to converge them.
type Synchronizer struct {
	store       storage.MetadataStore
	indexType   string
	dimensions  int
	indexPath   string
	mappingPath string
	compression vector.Compression
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.RWMutex
	index    vector.VectorIndex
	ids      []string
	idCounts map[string]int
	dups     int

	loadErr error
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets a logger for insert, rebuild and persistence events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithClock overrides the insertion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// New creates a Synchronizer and loads persisted artifacts if they exist.
// A load failure is not fatal: the index starts empty and the error is kept in LoadError.
func New(ctx context.Context, store storage.MetadataStore, cfg *config.Config, opts ...Option) (*Synchronizer, error) {
	compression, err := vector.ParseCompression(cfg.Vector.Compression)
	if err != nil {
		return nil, err
	}
	index, err := vector.NewVectorIndex(cfg.Vector.IndexType, cfg.Vector.Dimensions)
	if err != nil {
		return nil, err
	}
	s := &Synchronizer{
		store:       store,
		indexType:   cfg.Vector.IndexType,
		dimensions:  cfg.Vector.Dimensions,
		indexPath:   cfg.Storage.VectorIndexPath,
		mappingPath: cfg.Storage.VectorMappingPath,
		compression: compression,
		logger:      zap.NewNop(),
		now:         time.Now,
		index:       index,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Load(ctx); err != nil {
		s.logger.Warn("vector index load failed, starting empty", zap.Error(err))
	}
	return s, nil
}

// LoadError returns the error of the most recent Load, if any.
func (s *Synchronizer) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// InsertDocument validates the embedding, upserts the document into the metadata store
// and appends its vector. Re-inserting an existing id overwrites the metadata but leaves
// the earlier vector in place until the next rebuild.
func (s *Synchronizer) InsertDocument(ctx context.Context, input *models.DocumentInput) error {
	if input == nil {
		return fmt.Errorf("%w: nil input", models.ErrInvalidDocument)
	}
	if len(input.Embedding) != s.dimensions {
		return models.NewDimensionError(s.dimensions, len(input.Embedding))
	}
	doc, err := models.NewDocument(input, s.dimensions, s.now())
	if err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, doc); err != nil {
		return err
	}

	s.mu.Lock()
	pos, err := s.index.Append(doc.Embedding)
	if err == nil {
		s.appendIDLocked(doc.ID)
	}
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("vector append failed after metadata upsert; document unsearchable until rebuild",
			zap.String("id", doc.ID), zap.Error(err))
		return fmt.Errorf("append vector for %s: %w", doc.ID, err)
	}

	s.logger.Debug("document inserted", zap.String("id", doc.ID), zap.Int("position", pos))
	return nil
}

// DeleteDocument removes the document from the metadata store only.
// Its vector stays in the index until the next rebuild; semantic search skips it meanwhile.
func (s *Synchronizer) DeleteDocument(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("document deleted", zap.String("id", id))
	return nil
}

// RebuildStats summarizes a rebuild.
type RebuildStats struct {
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration_ns"`
}

// RebuildFromStore clears the index and regenerates it from every store document whose
// embedding matches the configured dimension, in store enumeration order. If enumeration
// fails the index is left empty and the caller must retry.
func (s *Synchronizer) RebuildFromStore(ctx context.Context) (*RebuildStats, error) {
	start := time.Now()
	s.mu.Lock()
	s.index.Reset()
	s.setIDsLocked(nil)
	s.mu.Unlock()
	s.logger.Info("vector index rebuild started")

	docs, err := s.store.FindMany(ctx, nil, 0)
	if err != nil {
		s.logger.Error("vector index rebuild aborted", zap.Error(err))
		return nil, fmt.Errorf("enumerate documents: %w", err)
	}

	fresh, err := vector.NewVectorIndex(s.indexType, s.dimensions)
	if err != nil {
		return nil, err
	}
	stats := &RebuildStats{}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.Dimension != s.dimensions || !doc.HasEmbedding() {
			stats.Skipped++
			s.logger.Debug("rebuild skipping document", zap.String("id", doc.ID), zap.Int("dimension", doc.Dimension))
			continue
		}
		if _, err := fresh.Append(doc.Embedding); err != nil {
			return nil, fmt.Errorf("append vector for %s: %w", doc.ID, err)
		}
		ids = append(ids, doc.ID)
	}
	stats.Indexed = len(ids)

	s.mu.Lock()
	s.index = fresh
	s.setIDsLocked(ids)
	s.mu.Unlock()

	stats.Duration = time.Since(start)
	s.logger.Info("vector index rebuilt",
		zap.Int("indexed", stats.Indexed),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("took", stats.Duration))
	return stats, nil
}

// Search returns up to k documents nearest to embedding that match filter, by descending similarity.
// Positions whose document is gone from the store are skipped, and each id is returned at most once.
func (s *Synchronizer) Search(ctx context.Context, embedding []float32, k int, filter models.Filter) ([]*models.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidLimit, k)
	}
	if len(embedding) != s.dimensions {
		return nil, models.NewDimensionError(s.dimensions, len(embedding))
	}

	s.mu.RLock()
	candidates := k
	if n := s.index.Size(); n > k && (len(filter) > 0 || s.duplicatesLocked() > 0) {
		candidates = n
	}
	hits, err := s.index.Search(embedding, candidates)
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = s.ids[h.Position]
	}
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	results := make([]*models.SearchResult, 0, k)
	seen := make(map[string]struct{}, len(hits))
	for i, h := range hits {
		id := ids[i]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		doc, err := s.store.Get(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !filter.Matches(doc) {
			continue
		}
		results = append(results, &models.SearchResult{
			Document: doc,
			Score:    models.SimilarityScore(h.Distance),
			Source:   models.SourceSemantic,
			Rank:     len(results) + 1,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Size returns the number of vectors in the index.
func (s *Synchronizer) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Size()
}

// Dimensions returns the configured embedding dimension.
func (s *Synchronizer) Dimensions() int {
	return s.dimensions
}

// DocumentIDs returns a copy of the position-to-id mapping.
func (s *Synchronizer) DocumentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ids...)
}

// Duplicates returns how many index entries belong to an id that already has an earlier entry.
func (s *Synchronizer) Duplicates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duplicatesLocked()
}

func (s *Synchronizer) duplicatesLocked() int {
	return s.dups
}

// setIDsLocked replaces the position mapping and recounts duplicates.
func (s *Synchronizer) setIDsLocked(ids []string) {
	s.ids = nil
	s.idCounts = make(map[string]int, len(ids))
	s.dups = 0
	for _, id := range ids {
		s.appendIDLocked(id)
	}
}

func (s *Synchronizer) appendIDLocked(id string) {
	if s.idCounts == nil {
		s.idCounts = make(map[string]int)
	}
	s.ids = append(s.ids, id)
	s.idCounts[id]++
	if s.idCounts[id] > 1 {
		s.dups++
	}
}

// Stats is a point-in-time view of the index.
type Stats struct {
	IndexType   string `json:"index_type"`
	Dimensions  int    `json:"dimensions"`
	Vectors     int    `json:"vectors"`
	Duplicates  int    `json:"duplicates"`
	IndexPath   string `json:"index_path"`
	MappingPath string `json:"mapping_path"`
	LoadError   string `json:"load_error,omitempty"`
}

// Stats returns index size and configuration.
func (s *Synchronizer) Stats() Stats {
	s.mu.RLock()
	st := Stats{
		IndexType:   s.index.Type(),
		Dimensions:  s.dimensions,
		Vectors:     s.index.Size(),
		Duplicates:  s.duplicatesLocked(),
		IndexPath:   s.indexPath,
		MappingPath: s.mappingPath,
	}
	if s.loadErr != nil {
		st.LoadError = s.loadErr.Error()
	}
	s.mu.RUnlock()
	return st
}
