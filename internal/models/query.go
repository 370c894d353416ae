package models

import (
	"fmt"
	"strings"
)

// SearchMode selects which channels a search runs.
type SearchMode string

const (
	ModeFullText SearchMode = "full_text"
	ModeSemantic SearchMode = "semantic"
	ModeHybrid   SearchMode = "hybrid"
)

// ParseSearchMode accepts the canonical names plus the "text" and "vector" aliases.
func ParseSearchMode(s string) (SearchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full_text", "fulltext", "text":
		return ModeFullText, nil
	case "semantic", "vector":
		return ModeSemantic, nil
	case "hybrid":
		return ModeHybrid, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// SearchQuery is a hybrid search request.
type SearchQuery struct {
	Query     string    `json:"query"`
	Mode      string    `json:"search_type"`
	Embedding []float32 `json:"embedding,omitempty"`
	Filter    Filter    `json:"filter_criteria,omitempty"`
	Limit     int       `json:"limit"`
	UserID    string    `json:"user_id,omitempty"`
	Fuzzy     bool      `json:"fuzzy,omitempty"`
	mode      SearchMode
}

// Validate checks limit, mode and embedding presence without touching any backend.
// The resolved mode is available from ResolvedMode afterwards.
func (q *SearchQuery) Validate() error {
	if q.Limit <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, q.Limit)
	}
	mode, err := ParseSearchMode(q.Mode)
	if err != nil {
		return err
	}
	if mode != ModeFullText && len(q.Embedding) == 0 {
		return fmt.Errorf("%w: %s search requires an embedding", ErrMissingEmbedding, mode)
	}
	q.mode = mode
	return nil
}

// ResolvedMode returns the mode computed by Validate.
func (q *SearchQuery) ResolvedMode() SearchMode {
	return q.mode
}
