// Package search provides the hybrid query engine (full-text + semantic) and result fusion.
package search

import (
	"sort"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

// NormalizeKeywordScores converts full-text hits to results with scores divided by the channel max,
// so the best text hit scores 1.0 like an exact vector match. Order is preserved.
func NormalizeKeywordScores(hits []*storage.ScoredDocument) []*models.SearchResult {
	results := make([]*models.SearchResult, 0, len(hits))
	if len(hits) == 0 {
		return results
	}
	maxScore := hits[0].Score
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	for _, h := range hits {
		score := 0.0
		if maxScore > 0 {
			score = h.Score / maxScore
		}
		results = append(results, &models.SearchResult{
			Document: h.Document,
			Score:    score,
			Source:   models.SourceFullText,
		})
	}
	return results
}

// Fuse merges full-text and semantic results into one list: deduplicated by document id
// with the first occurrence kept (full-text scanned first), sorted by descending score
// with ties in scan order, truncated to limit, and ranked from 1.
func Fuse(fullText, semantic []*models.SearchResult, limit int) []*models.SearchResult {
	seen := make(map[string]struct{}, len(fullText)+len(semantic))
	merged := make([]*models.SearchResult, 0, len(fullText)+len(semantic))
	for _, list := range [][]*models.SearchResult{fullText, semantic} {
		for _, r := range list {
			if r == nil || r.Document == nil {
				continue
			}
			if _, dup := seen[r.Document.ID]; dup {
				continue
			}
			seen[r.Document.ID] = struct{}{}
			merged = append(merged, r)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	rankResults(merged)
	return merged
}

func rankResults(results []*models.SearchResult) {
	for i, r := range results {
		r.Rank = i + 1
	}
}
