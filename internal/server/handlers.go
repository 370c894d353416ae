package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case models.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("query", query.Query),
		zap.String("search_type", query.Mode),
		zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.fail(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type vectorSearchRequest struct {
	Embedding []float32     `json:"embedding"`
	K         int           `json:"k"`
	Filter    models.Filter `json:"filter_criteria,omitempty"`
}

func (s *Server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	var req vectorSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	results, err := s.sync.Search(r.Context(), req.Embedding, req.K, req.Filter)
	if err != nil {
		s.fail(w, "vector search failed", err)
		return
	}
	if results == nil {
		results = []*models.SearchResult{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) handleInsertDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("insert document request", zap.String("id", input.ID), zap.Int("dimension", len(input.Embedding)))
	if err := s.sync.InsertDocument(r.Context(), &input); err != nil {
		s.fail(w, "insert failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": input.ID, "status": "indexed"})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.fail(w, "get document failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.sync.DeleteDocument(r.Context(), id); err != nil {
		s.fail(w, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if !s.rebuildLimiter.Allow() {
		s.respondError(w, http.StatusTooManyRequests, "rebuild rate limit exceeded")
		return
	}
	stats, err := s.sync.RebuildFromStore(r.Context())
	if err != nil {
		s.fail(w, "rebuild failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "rebuilt",
		"indexed":     stats.Indexed,
		"skipped":     stats.Skipped,
		"duration_ms": stats.Duration.Milliseconds(),
	})
}

func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.Persist(r.Context()); err != nil {
		s.fail(w, "persist failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "persisted",
		"vectors": s.sync.Size(),
	})
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusNotImplemented, "search history not enabled")
		return
	}
	limit := s.config.Search.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := s.history.ListHistory(r.Context(), r.URL.Query().Get("user_id"), limit)
	if err != nil {
		s.fail(w, "list history failed", err)
		return
	}
	if records == nil {
		records = []*models.SearchHistory{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"history": records, "total": len(records)})
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusNotImplemented, "search history not enabled")
		return
	}
	n, err := s.history.ClearHistory(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		s.fail(w, "clear history failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.store.Count(ctx)
	if err != nil {
		s.fail(w, "status: count documents failed", err)
		return
	}
	resp := map[string]interface{}{
		"documents":    docCount,
		"vector_index": s.sync.Stats(),
	}

	st := s.config.Storage
	configInfo := map[string]interface{}{
		"database_path":       st.DatabasePath,
		"bleve_index_path":    st.BleveIndexPath,
		"vector_index_path":   st.VectorIndexPath,
		"vector_mapping_path": st.VectorMappingPath,
		"compression":         s.config.Vector.Compression,
		"history_enabled":     s.history != nil,
	}
	footprint, err := storage.MeasureFootprint(st.DatabasePath, st.BleveIndexPath, st.VectorIndexPath, st.VectorMappingPath)
	if err == nil {
		resp["disk_usage"] = footprint
		resp["disk_usage_bytes"] = footprint.Total()
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
