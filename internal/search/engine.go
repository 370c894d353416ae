package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

// VectorSearcher is the semantic channel: nearest documents to an embedding, post-filtered.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, k int, filter models.Filter) ([]*models.SearchResult, error)
	Dimensions() int
}

// Engine runs full-text, semantic and hybrid search and logs every executed query.
type Engine struct {
	store   storage.MetadataStore
	vectors VectorSearcher
	history storage.HistoryStore
	config  *config.SearchConfig
	logger  *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for degraded channels and history failures.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithHistory sets the search history log. Without it searches are not recorded.
func WithHistory(h storage.HistoryStore) EngineOption {
	return func(e *Engine) { e.history = h }
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(store storage.MetadataStore, vectors VectorSearcher, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		vectors: vectors,
		config:  cfg,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search validates the query, including the embedding length, before any I/O, runs the channels the mode selects concurrently
// and fuses their results. In hybrid mode a single failing channel degrades the response;
// only a failure of every channel that ran is returned as an error.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(query, e.config); err != nil {
		return nil, err
	}
	mode := query.ResolvedMode()
	if mode != models.ModeFullText {
		if dim := e.vectors.Dimensions(); len(query.Embedding) != dim {
			return nil, models.NewDimensionError(dim, len(query.Embedding))
		}
	}

	var (
		fullTextResults []*models.SearchResult
		semanticResults []*models.SearchResult
		fullTextErr     error
		semanticErr     error
		wg              sync.WaitGroup
	)

	if mode != models.ModeSemantic {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := e.store.SearchText(ctx, query.Query, query.Filter, query.Limit, e.keywordOptions(query))
			if err != nil {
				fullTextErr = fmt.Errorf("full-text search failed: %w", err)
				return
			}
			fullTextResults = NormalizeKeywordScores(hits)
		}()
	}

	if mode != models.ModeFullText {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.vectors.Search(ctx, query.Embedding, query.Limit, query.Filter)
			if err != nil {
				semanticErr = fmt.Errorf("semantic search failed: %w", err)
				return
			}
			semanticResults = results
		}()
	}

	wg.Wait()

	response := &models.SearchResponse{
		Query:     query.Query,
		Mode:      mode,
		Timestamp: startTime.UTC(),
	}
	switch {
	case mode == models.ModeFullText && fullTextErr != nil:
		e.record(ctx, query, mode, 0, fullTextErr)
		return nil, fullTextErr
	case mode == models.ModeSemantic && semanticErr != nil:
		e.record(ctx, query, mode, 0, semanticErr)
		return nil, semanticErr
	case fullTextErr != nil && semanticErr != nil:
		err := errors.Join(fullTextErr, semanticErr)
		e.record(ctx, query, mode, 0, err)
		return nil, err
	case fullTextErr != nil || semanticErr != nil:
		failed := errors.Join(fullTextErr, semanticErr)
		response.Degraded = true
		response.Warnings = append(response.Warnings, failed.Error())
		e.logger.Warn("hybrid search degraded to a single channel", zap.String("query", query.Query), zap.Error(failed))
	}

	response.Results = Fuse(fullTextResults, semanticResults, query.Limit)
	response.TotalResults = len(response.Results)
	response.QueryTime = time.Since(startTime).Milliseconds()

	var degradedErr error
	if response.Degraded {
		degradedErr = errors.New(response.Warnings[0])
	}
	e.record(ctx, query, mode, response.TotalResults, degradedErr)
	return response, nil
}

func (e *Engine) keywordOptions(query *models.SearchQuery) *keyword.SearchOptions {
	opts := &keyword.SearchOptions{FuzzyEnabled: query.Fuzzy}
	if e.config != nil {
		opts.TitleBoost = e.config.KeywordTitleBoost
		opts.FuzzyEnabled = opts.FuzzyEnabled || e.config.Fuzzy
	}
	return opts
}

// record appends a history entry. A failing history log never fails the search.
func (e *Engine) record(ctx context.Context, query *models.SearchQuery, mode models.SearchMode, count int, searchErr error) {
	if e.history == nil {
		return
	}
	h := models.NewSearchHistory(query.Query, mode, count, query.UserID)
	if searchErr != nil {
		h.Error = searchErr.Error()
	}
	if err := e.history.AppendHistory(ctx, h); err != nil {
		e.logger.Warn("failed to record search history", zap.String("query", query.Query), zap.Error(err))
	}
}
