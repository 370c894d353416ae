package models

import (
	"time"

	"github.com/google/uuid"
)

// SearchHistory is one append-only log record written for every executed search.
type SearchHistory struct {
	ID          string     `json:"id"`
	Query       string     `json:"query"`
	Mode        SearchMode `json:"search_type"`
	ResultCount int        `json:"result_count"`
	Timestamp   time.Time  `json:"timestamp"`
	UserID      string     `json:"user_id,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewSearchHistory builds a record with a fresh id and the current time.
func NewSearchHistory(query string, mode SearchMode, resultCount int, userID string) *SearchHistory {
	return &SearchHistory{
		ID:          uuid.New().String(),
		Query:       query,
		Mode:        mode,
		ResultCount: resultCount,
		Timestamp:   time.Now().UTC(),
		UserID:      userID,
	}
}
