package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:    filepath.Join(dir, "db.sqlite"),
			BleveIndexPath:  filepath.Join(dir, "bleve"),
			VectorIndexPath: filepath.Join(dir, "vectors.bin"),
		},
		Vector: config.VectorConfig{Dimensions: 4},
	}
	config.ApplyDefaults(cfg)

	db, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	text, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	store := storage.NewStore(db, text, nil)
	t.Cleanup(func() { _ = store.Close() })

	sync, err := indexer.New(context.Background(), store, cfg)
	if err != nil {
		t.Fatal(err)
	}
	engine := search.NewEngine(store, sync, &cfg.Search, search.WithHistory(store.History()))
	srv := NewServer(engine, sync, store, store.History(), cfg, zap.NewNop())
	return srv, srv.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

func insertDoc(t *testing.T, h http.Handler, id string, emb []float32, meta map[string]interface{}) {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/documents", models.DocumentInput{ID: id, Embedding: emb, Metadata: meta})
	if w.Code != http.StatusCreated {
		t.Fatalf("insert %s: status %d body %s", id, w.Code, w.Body.String())
	}
}

func TestHandleInsertAndGetDocument(t *testing.T) {
	_, h := newTestServer(t)
	insertDoc(t, h, "doc1", []float32{1, 0, 0, 0}, map[string]interface{}{"title": "First", "lang": "en"})

	w := do(t, h, http.MethodGet, "/api/v1/documents/doc1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var doc models.Document
	decode(t, w, &doc)
	if doc.ID != "doc1" || doc.Title != "First" || doc.Dimension != 4 {
		t.Errorf("unexpected document: %+v", doc)
	}
	if doc.Fields["lang"] != "en" {
		t.Errorf("fields: got %v", doc.Fields)
	}

	w = do(t, h, http.MethodGet, "/api/v1/documents/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing document status: got %d", w.Code)
	}
}

func TestHandleInsertDocument_DimensionMismatch(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/api/v1/documents", models.DocumentInput{ID: "bad", Embedding: []float32{1, 2, 3}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
	w = do(t, h, http.MethodGet, "/api/v1/documents/bad", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("rejected document must not be stored, got status %d", w.Code)
	}
}

func TestHandleInsertDocument_InvalidBody(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/api/v1/documents", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	_, h := newTestServer(t)
	insertDoc(t, h, "doc1", []float32{1, 0, 0, 0}, map[string]interface{}{"content": "golang concurrency patterns"})
	insertDoc(t, h, "doc2", []float32{0, 1, 0, 0}, map[string]interface{}{"content": "gardening tips"})

	w := do(t, h, http.MethodPost, "/api/v1/search", map[string]interface{}{
		"query":       "golang",
		"search_type": "hybrid",
		"embedding":   []float32{0, 1, 0, 0},
		"limit":       5,
		"user_id":     "tester",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	decode(t, w, &resp)
	if resp.Mode != models.ModeHybrid || resp.Query != "golang" {
		t.Errorf("unexpected echo: %+v", resp)
	}
	if resp.TotalResults != 2 || len(resp.Results) != 2 {
		t.Fatalf("results: got %d", len(resp.Results))
	}
	if resp.Results[0].Score != 1.0 {
		t.Errorf("top score: got %f", resp.Results[0].Score)
	}
	if resp.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestHandleSearch_ValidationErrors(t *testing.T) {
	_, h := newTestServer(t)
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing embedding", map[string]interface{}{"query": "x", "search_type": "semantic", "limit": 5}},
		{"zero limit", map[string]interface{}{"query": "x", "search_type": "full_text", "limit": 0}},
		{"unknown mode", map[string]interface{}{"query": "x", "search_type": "magic", "limit": 5}},
		{"wrong dimension", map[string]interface{}{"search_type": "semantic", "embedding": []float32{1, 2}, "limit": 5}},
		{"hybrid wrong dimension", map[string]interface{}{"query": "x", "search_type": "hybrid", "embedding": []float32{1, 0, 0}, "limit": 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/search", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400 (body %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestHandleVectorSearch(t *testing.T) {
	_, h := newTestServer(t)
	insertDoc(t, h, "doc1", []float32{1, 0, 0, 0}, nil)
	insertDoc(t, h, "doc2", []float32{0, 1, 0, 0}, nil)
	insertDoc(t, h, "doc3", []float32{0, 0, 1, 0}, nil)

	w := do(t, h, http.MethodPost, "/api/v1/vectors/search", map[string]interface{}{
		"embedding": []float32{0.9, 0.1, 0, 0},
		"k":         2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Results []*models.SearchResult `json:"results"`
	}
	decode(t, w, &out)
	if len(out.Results) != 2 || out.Results[0].Document.ID != "doc1" || out.Results[1].Document.ID != "doc2" {
		t.Errorf("unexpected results: %+v", out.Results)
	}

	w = do(t, h, http.MethodPost, "/api/v1/vectors/search", map[string]interface{}{"embedding": []float32{1, 0, 0, 0}, "k": 0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("k=0 status: got %d, want 400", w.Code)
	}
}

func TestHandleDeleteRebuildCycle(t *testing.T) {
	srv, h := newTestServer(t)
	insertDoc(t, h, "a", []float32{1, 0, 0, 0}, nil)
	insertDoc(t, h, "b", []float32{0, 1, 0, 0}, nil)

	w := do(t, h, http.MethodDelete, "/api/v1/documents/a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status: got %d", w.Code)
	}
	if srv.sync.Size() != 2 {
		t.Errorf("delete must leave the vector until rebuild, size %d", srv.sync.Size())
	}

	w = do(t, h, http.MethodPost, "/api/v1/index/rebuild", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rebuild status: got %d body %s", w.Code, w.Body.String())
	}
	var out map[string]interface{}
	decode(t, w, &out)
	if out["indexed"] != 1.0 {
		t.Errorf("indexed: got %v", out["indexed"])
	}
	if srv.sync.Size() != 1 {
		t.Errorf("size after rebuild: got %d", srv.sync.Size())
	}

	w = do(t, h, http.MethodDelete, "/api/v1/documents/a", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status: got %d, want 404", w.Code)
	}
}

func TestHandleRebuild_RateLimited(t *testing.T) {
	_, h := newTestServer(t)
	if w := do(t, h, http.MethodPost, "/api/v1/index/rebuild", nil); w.Code != http.StatusOK {
		t.Fatalf("first rebuild: got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/index/rebuild", nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("second rebuild: got %d, want 429", w.Code)
	}
}

func TestHandlePersist(t *testing.T) {
	srv, h := newTestServer(t)
	insertDoc(t, h, "a", []float32{1, 0, 0, 0}, nil)
	w := do(t, h, http.MethodPost, "/api/v1/index/persist", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("persist status: got %d body %s", w.Code, w.Body.String())
	}
	if err := srv.sync.Load(context.Background()); err != nil {
		t.Fatalf("reload persisted artifacts: %v", err)
	}
	if srv.sync.Size() != 1 {
		t.Errorf("size after reload: got %d", srv.sync.Size())
	}
}

func TestHandleHistory(t *testing.T) {
	_, h := newTestServer(t)
	for i, user := range []string{"alice", "bob", "alice"} {
		body := map[string]interface{}{"query": fmt.Sprintf("q%d", i), "search_type": "text", "limit": 3, "user_id": user}
		if w := do(t, h, http.MethodPost, "/api/v1/search", body); w.Code != http.StatusOK {
			t.Fatalf("search %d: got %d", i, w.Code)
		}
	}

	w := do(t, h, http.MethodGet, "/api/v1/history?user_id=alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status: got %d", w.Code)
	}
	var out struct {
		History []*models.SearchHistory `json:"history"`
		Total   int                     `json:"total"`
	}
	decode(t, w, &out)
	if out.Total != 2 || out.History[0].Query != "q2" {
		t.Errorf("unexpected history: %+v", out)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/history?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status: got %d", w.Code)
	}

	w = do(t, h, http.MethodDelete, "/api/v1/history", nil)
	var cleared map[string]int64
	decode(t, w, &cleared)
	if cleared["deleted"] != 3 {
		t.Errorf("deleted: got %d", cleared["deleted"])
	}
}

func TestHandleStatus(t *testing.T) {
	_, h := newTestServer(t)
	insertDoc(t, h, "a", []float32{1, 0, 0, 0}, nil)
	insertDoc(t, h, "a", []float32{0, 1, 0, 0}, nil)

	w := do(t, h, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Documents   int64 `json:"documents"`
		VectorIndex struct {
			Vectors    int `json:"vectors"`
			Duplicates int `json:"duplicates"`
			Dimensions int `json:"dimensions"`
		} `json:"vector_index"`
		DiskUsageBytes int64 `json:"disk_usage_bytes"`
	}
	decode(t, w, &out)
	if out.Documents != 1 || out.VectorIndex.Vectors != 2 || out.VectorIndex.Duplicates != 1 {
		t.Errorf("unexpected status: %+v", out)
	}
	if out.VectorIndex.Dimensions != 4 {
		t.Errorf("dimensions: got %d", out.VectorIndex.Dimensions)
	}
	if out.DiskUsageBytes <= 0 {
		t.Errorf("disk usage should count the database file, got %d", out.DiskUsageBytes)
	}
}

func TestHandleHealth(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewDimensionError(4, 3), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", models.ErrMissingEmbedding), http.StatusBadRequest},
		{models.ErrInvalidLimit, http.StatusBadRequest},
		{models.ErrInvalidMode, http.StatusBadRequest},
		{models.ErrInvalidDocument, http.StatusBadRequest},
		{models.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: down", models.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{models.ErrPersistenceIO, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
