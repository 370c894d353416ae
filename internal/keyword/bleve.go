package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/kensaku/internal/models"
)

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// indexedDocument is the shape handed to bleve. Text carries the string values of
// caller-supplied fields so they are searchable too.
type indexedDocument struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	DocType string `json:"doc_type"`
	Text    string `json:"text"`
}

func newIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so article numbers and
	// batch codes match exactly.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("doc_type", keywordFieldMapping)
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path.
// An empty path creates a memory-only index.
// If you change the index mapping in code, remove the index directory and rebuild it.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := newIndexMapping()
	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes (or re-indexes) a document by its id.
func (b *BleveIndex) Index(ctx context.Context, doc *models.Document) error {
	return b.index.Index(doc.ID, &indexedDocument{
		ID:      doc.ID,
		Title:   doc.Title,
		Content: doc.Content,
		DocType: doc.DocType,
		Text:    fieldText(doc.Fields),
	})
}

// fieldText joins the string values of fields in key order.
func fieldText(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Search runs a match query and returns up to limit results ordered by score.
// When opts.TitleBoost > 1, each field is queried separately and merged additively.
// When opts.FuzzyEnabled is true, fuzzy matching is used for typo tolerance.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	titleBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	if titleBoost <= 1.0 {
		return b.searchSingle(ctx, query, limit, fuzzyEnabled, fuzziness)
	}
	return b.searchWithTitleBoost(ctx, query, limit, titleBoost, fuzzyEnabled, fuzziness)
}

// searchSingle runs one query over all fields.
func (b *BleveIndex) searchSingle(ctx context.Context, query string, limit int, fuzzyEnabled bool, fuzziness int) ([]*KeywordResult, error) {
	var q blevequery.Query
	if fuzzyEnabled {
		q = buildFuzzyQuery(query, fuzziness, "")
	} else {
		q = bleve.NewMatchQuery(query)
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// searchFields are the indexed fields; the title-boosted search queries each of them so it
// matches the same documents as the all-fields match query.
var searchFields = []string{"title", "content", "text", "doc_type", "id"}

// searchWithTitleBoost scores documents as (titleScore * titleBoost) + the other fields' scores.
func (b *BleveIndex) searchWithTitleBoost(ctx context.Context, query string, limit int, titleBoost float64, fuzzyEnabled bool, fuzziness int) ([]*KeywordResult, error) {
	// Request enough from each so the merged top "limit" is correct (same doc can appear in both).
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}

	scores := make(map[string]float64)
	for _, field := range searchFields {
		var q blevequery.Query
		if fuzzyEnabled {
			q = buildFuzzyQuery(query, fuzziness, field)
		} else {
			mq := bleve.NewMatchQuery(query)
			mq.SetField(field)
			q = mq
		}
		req := bleve.NewSearchRequest(q)
		req.Size = reqSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("Bleve %s search failed: %w", field, err)
		}
		boost := 1.0
		if field == "title" {
			boost = titleBoost
		}
		for _, hit := range results.Hits {
			scores[hit.ID] += hit.Score * boost
		}
	}

	merged := make([]*KeywordResult, 0, len(scores))
	for id, score := range scores {
		merged = append(merged, &KeywordResult{ID: id, Score: score})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries for each term in the query.
// If field is empty, searches all fields; otherwise restricts to the specified field.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
