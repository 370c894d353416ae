package search

import (
	"strings"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/models"
)

// ProcessQuery validates the query and normalizes it: trims the text and caps the limit at cfg.MaxLimit.
func ProcessQuery(query *models.SearchQuery, cfg *config.SearchConfig) error {
	if err := query.Validate(); err != nil {
		return err
	}
	query.Query = strings.TrimSpace(query.Query)
	if cfg != nil && cfg.MaxLimit > 0 && query.Limit > cfg.MaxLimit {
		query.Limit = cfg.MaxLimit
	}
	return nil
}
