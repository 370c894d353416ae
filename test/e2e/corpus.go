// Package e2e provides end-to-end tests with a generated corpus and multiple queries.
package e2e

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/hyperjump/kensaku/internal/models"
)

// DocTypes are the variants generated for every topic.
var DocTypes = []string{"article", "note", "faq"}

// E2EDocument is a corpus entry with its deterministic embedding.
type E2EDocument struct {
	ID        string
	Topic     int
	Title     string
	Content   string
	DocType   string
	Embedding []float32
}

// QueryTestCase is a query plus the document ID that must rank first, or the
// IDs that must all appear when ranking among them is not fixed.
type QueryTestCase struct {
	Description string
	Mode        models.SearchMode
	Query       string
	Embedding   []float32
	Filter      models.Filter
	ExpectedTop string
	ExpectedIDs []string
}

// Corpus holds documents and query test cases for E2E tests.
type Corpus struct {
	Dimensions   int
	Documents    []E2EDocument
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

var topics = []struct {
	title  string
	phrase string
	body   string
}{
	{"Raft Consensus", "raft leader election", "Raft replicates a log across a cluster. Raft leader election picks a single writer per term."},
	{"Bloom Filters", "bloom filter false positives", "A bloom filter answers set membership in constant space. Bloom filter false positives grow with load."},
	{"Write-Ahead Logging", "write-ahead log durability", "Databases append changes before applying them. Write-ahead log durability survives crashes."},
	{"LSM Trees", "log-structured merge compaction", "LSM trees buffer writes in memory. Log-structured merge compaction rewrites sorted runs."},
	{"Consistent Hashing", "consistent hashing ring", "Keys map to nodes on a circle. Consistent hashing ring limits movement when nodes join."},
	{"Vector Quantization", "product quantization codebooks", "Quantization compresses embeddings. Product quantization codebooks split vectors into subspaces."},
	{"Inverted Index", "inverted index postings", "Search engines map terms to documents. Inverted index postings store term positions."},
	{"BM25 Ranking", "okapi bm25 saturation", "BM25 scores term frequency with length normalization. Okapi bm25 saturation caps repeated terms."},
	{"Nearest Neighbour Graphs", "hierarchical navigable small world", "Graph indexes link close vectors. Hierarchical navigable small world graphs give logarithmic search."},
	{"Token Buckets", "token bucket refill", "Rate limiters hand out tokens. Token bucket refill rate bounds sustained throughput."},
	{"Backpressure", "backpressure flow control", "Slow consumers must signal producers. Backpressure flow control keeps queues bounded."},
	{"Zstandard", "zstandard dictionary compression", "Zstandard trades speed for ratio with levels. Zstandard dictionary compression helps small payloads."},
	{"Gossip Protocols", "gossip membership dissemination", "Nodes exchange state with random peers. Gossip membership dissemination converges in log rounds."},
	{"Vector Clocks", "vector clock causality", "Each replica counts its own events. Vector clock causality detects concurrent updates."},
	{"Snapshot Isolation", "snapshot isolation write skew", "Transactions read a consistent snapshot. Snapshot isolation write skew is still possible."},
	{"Columnar Storage", "columnar storage encoding", "Analytic stores keep columns together. Columnar storage encoding uses run length and dictionaries."},
	{"Memory-Mapped Files", "memory mapped page cache", "The kernel maps files into address space. Memory mapped page cache avoids extra copies."},
	{"Skip Lists", "skip list probabilistic levels", "Skip lists keep sorted keys with express lanes. Skip list probabilistic levels give log time search."},
	{"Cuckoo Hashing", "cuckoo hashing eviction", "Each key has two candidate slots. Cuckoo hashing eviction moves residents to their alternate."},
	{"Merkle Trees", "merkle tree anti-entropy", "Hash trees summarize data ranges. Merkle tree anti-entropy finds divergent replicas quickly."},
	{"Cosine Similarity", "cosine similarity normalization", "Angles between vectors measure relatedness. Cosine similarity normalization removes magnitude."},
	{"Reciprocal Rank Fusion", "reciprocal rank fusion", "Several ranked lists can be merged. Reciprocal rank fusion sums inverse ranks."},
	{"Tokenization", "unicode tokenization segmentation", "Text must be split into terms. Unicode tokenization segmentation handles scripts without spaces."},
	{"Stemming", "porter stemming suffixes", "Stemmers reduce words to roots. Porter stemming suffixes are stripped in ordered steps."},
}

// BuildCorpus returns one document per topic and doc type. Each topic owns a
// basis direction so semantic queries have a single exact nearest neighbour.
func BuildCorpus() *Corpus {
	dims := len(topics)
	docs := make([]E2EDocument, 0, len(topics)*len(DocTypes))
	for i, tp := range topics {
		for v, docType := range DocTypes {
			emb := make([]float32, dims)
			emb[i] = 1
			emb[(i+1)%dims] = 0.1 * float32(v)
			docs = append(docs, E2EDocument{
				ID:        DocID(i, docType),
				Topic:     i,
				Title:     fmt.Sprintf("%s (%s)", tp.title, docType),
				Content:   tp.body,
				DocType:   docType,
				Embedding: emb,
			})
		}
	}
	cases := buildQueryTestCases(dims)
	return &Corpus{
		Dimensions:   dims,
		Documents:    docs,
		TestCases:    cases,
		TotalDocs:    len(docs),
		TotalQueries: len(cases),
	}
}

// DocID is the corpus id for a topic and doc type.
func DocID(topic int, docType string) string {
	return fmt.Sprintf("topic-%02d-%s", topic, docType)
}

// TopicEmbedding is the basis vector of a topic.
func TopicEmbedding(dims, topic int) []float32 {
	emb := make([]float32, dims)
	emb[topic] = 1
	return emb
}

func buildQueryTestCases(dims int) []QueryTestCase {
	var cases []QueryTestCase
	for i, tp := range topics {
		j := unrelatedTopic(i)
		cases = append(cases,
			QueryTestCase{
				Description: "phrase filtered to faq: " + tp.title,
				Mode:        models.ModeFullText,
				Query:       tp.phrase,
				Filter:      models.Filter{models.FieldDocType: "faq"},
				ExpectedTop: DocID(i, "faq"),
			},
			QueryTestCase{
				Description: "basis vector: " + tp.title,
				Mode:        models.ModeSemantic,
				Embedding:   TopicEmbedding(dims, i),
				ExpectedTop: DocID(i, "article"),
			},
			QueryTestCase{
				Description: "basis vector filtered to note: " + tp.title,
				Mode:        models.ModeSemantic,
				Embedding:   TopicEmbedding(dims, i),
				Filter:      models.Filter{models.FieldDocType: "note"},
				ExpectedTop: DocID(i, "note"),
			},
			QueryTestCase{
				Description: "hybrid phrase plus another topic's vector: " + tp.title,
				Mode:        models.ModeHybrid,
				Query:       tp.phrase,
				Embedding:   TopicEmbedding(dims, j),
				ExpectedIDs: []string{DocID(i, "article"), DocID(i, "note"), DocID(i, "faq"), DocID(j, "article")},
			},
		)
	}
	return cases
}

// unrelatedTopic returns a topic whose title and body share no term with topic
// i's phrase, so its documents reach hybrid results only through the vector channel.
func unrelatedTopic(i int) int {
	phrase := terms(topics[i].phrase)
	for step := len(topics) / 2; step < len(topics)+len(topics)/2; step++ {
		j := (i + step) % len(topics)
		if j == i {
			continue
		}
		text := terms(topics[j].title + " " + topics[j].body)
		shared := false
		for t := range phrase {
			if _, ok := text[t]; ok {
				shared = true
				break
			}
		}
		if !shared {
			return j
		}
	}
	panic("e2e: no unrelated topic for " + topics[i].title)
}

func terms(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[f] = struct{}{}
	}
	return out
}

// ToDocumentInputs converts corpus documents to insert requests.
func (c *Corpus) ToDocumentInputs() []*models.DocumentInput {
	out := make([]*models.DocumentInput, len(c.Documents))
	for i, d := range c.Documents {
		out[i] = &models.DocumentInput{
			ID:        d.ID,
			Embedding: d.Embedding,
			Metadata: map[string]interface{}{
				models.FieldTitle:   d.Title,
				models.FieldContent: d.Content,
				models.FieldDocType: d.DocType,
				"topic":             d.Topic,
			},
		}
	}
	return out
}
