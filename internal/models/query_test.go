package models

import (
	"errors"
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	emb := []float32{1, 0, 0, 0}
	tests := []struct {
		name     string
		query    *SearchQuery
		wantErr  error
		wantMode SearchMode
	}{
		{"zero limit", &SearchQuery{Query: "x", Mode: "full_text"}, ErrInvalidLimit, ""},
		{"negative limit", &SearchQuery{Query: "x", Mode: "hybrid", Embedding: emb, Limit: -1}, ErrInvalidLimit, ""},
		{"unknown mode", &SearchQuery{Query: "x", Mode: "fuzzy", Limit: 5}, ErrInvalidMode, ""},
		{"semantic without embedding", &SearchQuery{Mode: "semantic", Limit: 5}, ErrMissingEmbedding, ""},
		{"hybrid without embedding", &SearchQuery{Query: "x", Mode: "hybrid", Limit: 5}, ErrMissingEmbedding, ""},
		{"full text without embedding", &SearchQuery{Query: "x", Mode: "full_text", Limit: 5}, nil, ModeFullText},
		{"text alias", &SearchQuery{Query: "x", Mode: "text", Limit: 5}, nil, ModeFullText},
		{"vector alias", &SearchQuery{Mode: "vector", Embedding: emb, Limit: 5}, nil, ModeSemantic},
		{"hybrid", &SearchQuery{Query: "x", Mode: "HYBRID", Embedding: emb, Limit: 5}, nil, ModeHybrid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
			if got := tt.query.ResolvedMode(); got != tt.wantMode {
				t.Errorf("ResolvedMode() = %q, want %q", got, tt.wantMode)
			}
		})
	}
}

func TestSimilarityScore(t *testing.T) {
	if SimilarityScore(0) != 1.0 {
		t.Errorf("distance 0 should score 1.0, got %f", SimilarityScore(0))
	}
	if SimilarityScore(1) != 0.5 {
		t.Errorf("distance 1 should score 0.5, got %f", SimilarityScore(1))
	}
	if SimilarityScore(2) >= SimilarityScore(1) {
		t.Error("score should decrease with distance")
	}
}
