package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

func result(id string, score float64, source models.ResultSource) *models.SearchResult {
	return &models.SearchResult{Document: &models.Document{ID: id}, Score: score, Source: source}
}

func TestNormalizeKeywordScores(t *testing.T) {
	hits := []*storage.ScoredDocument{
		{Document: &models.Document{ID: "a"}, Score: 4},
		{Document: &models.Document{ID: "b"}, Score: 2},
		{Document: &models.Document{ID: "c"}, Score: 1},
	}
	got := NormalizeKeywordScores(hits)
	require.Len(t, got, 3)
	assert.Equal(t, 1.0, got[0].Score)
	assert.Equal(t, 0.5, got[1].Score)
	assert.Equal(t, 0.25, got[2].Score)
	for _, r := range got {
		assert.Equal(t, models.SourceFullText, r.Source)
	}

	assert.Empty(t, NormalizeKeywordScores(nil))

	zero := NormalizeKeywordScores([]*storage.ScoredDocument{{Document: &models.Document{ID: "z"}, Score: 0}})
	require.Len(t, zero, 1)
	assert.Equal(t, 0.0, zero[0].Score)
}

func TestFuse(t *testing.T) {
	tests := []struct {
		name     string
		fullText []*models.SearchResult
		semantic []*models.SearchResult
		limit    int
		wantIDs  []string
		wantSrc  []models.ResultSource
	}{
		{
			name:     "duplicate keeps full-text copy even with lower score",
			fullText: []*models.SearchResult{result("a", 0.3, models.SourceFullText)},
			semantic: []*models.SearchResult{result("a", 0.9, models.SourceSemantic), result("b", 0.5, models.SourceSemantic)},
			limit:    10,
			wantIDs:  []string{"b", "a"},
			wantSrc:  []models.ResultSource{models.SourceSemantic, models.SourceFullText},
		},
		{
			name:     "descending by score across channels",
			fullText: []*models.SearchResult{result("t1", 1.0, models.SourceFullText), result("t2", 0.2, models.SourceFullText)},
			semantic: []*models.SearchResult{result("s1", 0.6, models.SourceSemantic)},
			limit:    10,
			wantIDs:  []string{"t1", "s1", "t2"},
			wantSrc:  []models.ResultSource{models.SourceFullText, models.SourceSemantic, models.SourceFullText},
		},
		{
			name:     "ties keep full-text first",
			fullText: []*models.SearchResult{result("t", 1.0, models.SourceFullText)},
			semantic: []*models.SearchResult{result("s", 1.0, models.SourceSemantic)},
			limit:    10,
			wantIDs:  []string{"t", "s"},
			wantSrc:  []models.ResultSource{models.SourceFullText, models.SourceSemantic},
		},
		{
			name:     "truncated after sort",
			fullText: []*models.SearchResult{result("low", 0.1, models.SourceFullText)},
			semantic: []*models.SearchResult{result("hi", 0.9, models.SourceSemantic), result("mid", 0.5, models.SourceSemantic)},
			limit:    2,
			wantIDs:  []string{"hi", "mid"},
			wantSrc:  []models.ResultSource{models.SourceSemantic, models.SourceSemantic},
		},
		{
			name:    "empty",
			limit:   5,
			wantIDs: []string{},
			wantSrc: []models.ResultSource{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fuse(tt.fullText, tt.semantic, tt.limit)
			ids := make([]string, len(got))
			srcs := make([]models.ResultSource, len(got))
			for i, r := range got {
				ids[i] = r.Document.ID
				srcs[i] = r.Source
				assert.Equal(t, i+1, r.Rank)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantSrc, srcs)
		})
	}
}

func TestFuseEachIDOnce(t *testing.T) {
	fullText := []*models.SearchResult{result("x", 0.4, models.SourceFullText), result("y", 0.8, models.SourceFullText)}
	semantic := []*models.SearchResult{result("y", 0.1, models.SourceSemantic), result("x", 0.99, models.SourceSemantic), result("z", 0.5, models.SourceSemantic)}
	got := Fuse(fullText, semantic, 10)

	counts := map[string]int{}
	for _, r := range got {
		counts[r.Document.ID]++
		if r.Document.ID != "z" {
			assert.Equal(t, models.SourceFullText, r.Source, r.Document.ID)
		}
	}
	assert.Equal(t, map[string]int{"x": 1, "y": 1, "z": 1}, counts)
}
