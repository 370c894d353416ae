// Package storage defines the metadata store contract and its SQLite + Bleve implementation.
package storage

import (
	"context"

	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
)

// Storage defines raw document and search-history persistence.
type Storage interface {
	// Document operations
	UpsertDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	CountDocuments(ctx context.Context) (int64, error)

	HistoryStore

	Close() error
}

// HistoryStore is the append-only search history log.
type HistoryStore interface {
	AppendHistory(ctx context.Context, h *models.SearchHistory) error
	// ListHistory returns records newest first. Empty userID means all users; limit <= 0 means no limit.
	ListHistory(ctx context.Context, userID string, limit int) ([]*models.SearchHistory, error)
	// ClearHistory deletes records of userID (all records when empty) and returns how many were removed.
	ClearHistory(ctx context.Context, userID string) (int64, error)
}

// MetadataStore is the durable id-keyed document store the vector index is kept in sync with.
// Every failure of the backing store is reported as models.ErrStoreUnavailable; missing ids as models.ErrNotFound.
type MetadataStore interface {
	Upsert(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id string) (*models.Document, error)
	// FindMany enumerates documents matching filter in store order. limit <= 0 means all.
	FindMany(ctx context.Context, filter models.Filter, limit int) ([]*models.Document, error)
	// SearchText runs a full-text query and returns matching documents by descending text score.
	SearchText(ctx context.Context, query string, filter models.Filter, limit int, opts *keyword.SearchOptions) ([]*ScoredDocument, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// ScoredDocument is a document with its full-text relevance score.
type ScoredDocument struct {
	Document *models.Document
	Score    float64
}
