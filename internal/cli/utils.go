// Package cli provides CLI output formatting for Kensaku.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// OutputFormat is the format for CLI output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\t%s\n", r.Rank, r.Score, r.Source, r.Document.ID, r.Document.Title)
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (%s)\n", response.TotalResults, response.QueryTime, response.Mode)
	if response.Degraded {
		for _, warning := range response.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warning)
		}
	}
	fmt.Fprintln(w)
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
}

func writeOneResult(w io.Writer, result *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%s] Rank: %d | Score: %.4f\n", result.Source, result.Rank, result.Score)
	fmt.Fprintf(w, "ID: %s\n", result.Document.ID)
	if result.Document.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", result.Document.Title)
	}
	if result.Document.DocType != "" {
		fmt.Fprintf(w, "Type: %s\n", result.Document.DocType)
	}
	if result.Document.Content != "" {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(result.Document.Content, 200))
	}
	fmt.Fprintln(w)
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// WriteHistory writes search history records to w, newest first as given.
func WriteHistory(w io.Writer, records []*models.SearchHistory, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "no search history")
		return nil
	}
	for _, h := range records {
		user := h.UserID
		if user == "" {
			user = "-"
		}
		line := fmt.Sprintf("%s  %-9s  %3d  %-12s  %s",
			h.Timestamp.Format("2006-01-02 15:04:05"), h.Mode, h.ResultCount, user, h.Query)
		if h.Error != "" && format != OutputCompact {
			line += "  ! " + h.Error
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
