// Package server provides the HTTP API for Kensaku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
)

// Server is the HTTP server for the Kensaku API.
type Server struct {
	engine         *search.Engine
	sync           *indexer.Synchronizer
	store          storage.MetadataStore
	history        storage.HistoryStore
	config         *config.Config
	logger         *zap.Logger
	rebuildLimiter *rate.Limiter
	server         *http.Server
}

// NewServer creates a server with the given dependencies. history may be nil when search history is disabled.
func NewServer(
	engine *search.Engine,
	sync *indexer.Synchronizer,
	store storage.MetadataStore,
	history storage.HistoryStore,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:         engine,
		sync:           sync,
		store:          store,
		history:        history,
		config:         cfg,
		logger:         logger,
		rebuildLimiter: newRebuildLimiter(cfg.Server.RebuildRatePerMinute),
	}
}

// newRebuildLimiter allows perMinute rebuilds per minute with no burst. perMinute < 0 disables limiting.
func newRebuildLimiter(perMinute int) *rate.Limiter {
	if perMinute < 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if perMinute == 0 {
		perMinute = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/vectors/search", s.handleVectorSearch)

		r.Post("/documents", s.handleInsertDocument)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)

		r.Post("/index/rebuild", s.handleRebuild)
		r.Post("/index/persist", s.handlePersist)

		r.Get("/history", s.handleHistoryList)
		r.Delete("/history", s.handleHistoryClear)

		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
