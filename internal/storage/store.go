package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
)

const (
	findPageSize       = 256
	textCandidateFloor = 50
	textCandidateMul   = 4
)

// Store is the MetadataStore backed by SQLite for documents and Bleve for full-text search.
type Store struct {
	db     Storage
	text   keyword.KeywordIndex
	logger *zap.Logger
}

// NewStore combines a document storage and a keyword index into a MetadataStore.
func NewStore(db Storage, text keyword.KeywordIndex, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, text: text, logger: logger}
}

// History exposes the search history log of the underlying storage.
func (s *Store) History() HistoryStore {
	return s.db
}

// Upsert writes the document row, then its full-text entry.
func (s *Store) Upsert(ctx context.Context, doc *models.Document) error {
	if doc == nil || doc.ID == "" {
		return models.ErrInvalidDocument
	}
	if err := s.db.UpsertDocument(ctx, doc); err != nil {
		return err
	}
	if err := s.text.Index(ctx, doc); err != nil {
		return fmt.Errorf("%w: index text: %w", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Get returns the document with the given id or models.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocument(ctx, id)
}

// FindMany pages through documents in insertion order and keeps those matching filter.
func (s *Store) FindMany(ctx context.Context, filter models.Filter, limit int) ([]*models.Document, error) {
	var out []*models.Document
	for offset := 0; ; offset += findPageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.db.ListDocuments(ctx, offset, findPageSize)
		if err != nil {
			return nil, err
		}
		for _, doc := range page {
			if !filter.Matches(doc) {
				continue
			}
			out = append(out, doc)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		if len(page) < findPageSize {
			return out, nil
		}
	}
}

// SearchText queries the keyword index, resolves hits to documents, and applies filter.
// Hits whose document no longer exists are skipped. With a filter the candidate window
// widens until limit matches are found or the keyword index has no more hits.
func (s *Store) SearchText(ctx context.Context, query string, filter models.Filter, limit int, opts *keyword.SearchOptions) ([]*ScoredDocument, error) {
	if limit <= 0 {
		return nil, models.ErrInvalidLimit
	}
	candidates := limit
	if len(filter) > 0 {
		candidates = limit * textCandidateMul
		if candidates < textCandidateFloor {
			candidates = textCandidateFloor
		}
	}

	resolved := make(map[string]*models.Document)
	for {
		hits, err := s.text.Search(ctx, query, candidates, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: text search: %w", models.ErrStoreUnavailable, err)
		}
		out, err := s.resolveHits(ctx, hits, filter, limit, resolved)
		if err != nil {
			return nil, err
		}
		if len(out) >= limit || len(hits) < candidates {
			return out, nil
		}
		candidates *= 2
	}
}

// resolveHits maps hits to documents in hit order, keeping at most limit that match filter.
// Documents already fetched in an earlier round are taken from resolved; a nil entry marks a stale hit.
func (s *Store) resolveHits(ctx context.Context, hits []*keyword.KeywordResult, filter models.Filter, limit int, resolved map[string]*models.Document) ([]*ScoredDocument, error) {
	out := make([]*ScoredDocument, 0, limit)
	for _, hit := range hits {
		doc, seen := resolved[hit.ID]
		if !seen {
			var err error
			doc, err = s.db.GetDocument(ctx, hit.ID)
			if errors.Is(err, models.ErrNotFound) {
				s.logger.Debug("keyword hit without document", zap.String("id", hit.ID))
				doc = nil
			} else if err != nil {
				return nil, err
			}
			resolved[hit.ID] = doc
		}
		if doc == nil || !filter.Matches(doc) {
			continue
		}
		out = append(out, &ScoredDocument{Document: doc, Score: hit.Score})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Delete removes the document from both the table and the keyword index.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.db.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := s.text.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete text: %w", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.db.CountDocuments(ctx)
}

// Close releases the keyword index and the database.
func (s *Store) Close() error {
	return errors.Join(s.text.Close(), s.db.Close())
}
