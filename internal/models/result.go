package models

import "time"

// ResultSource names the channel a result came from.
type ResultSource string

const (
	SourceFullText ResultSource = "full_text"
	SourceSemantic ResultSource = "semantic"
)

// SearchResult is a single hit: document, score and channel.
type SearchResult struct {
	Document *Document    `json:"document"`
	Score    float64      `json:"score"`
	Source   ResultSource `json:"source"`
	Rank     int          `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query        string          `json:"query"`
	Mode         SearchMode      `json:"search_type"`
	Results      []*SearchResult `json:"results"`
	TotalResults int             `json:"total_results"`
	Timestamp    time.Time       `json:"timestamp"`
	QueryTime    int64           `json:"query_time_ms"`
	// Degraded is set when one hybrid channel failed and only the other contributed.
	Degraded bool     `json:"degraded,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// SimilarityScore turns an L2 distance into a ranking score in (0, 1].
func SimilarityScore(distance float64) float64 {
	return 1 / (1 + distance)
}
