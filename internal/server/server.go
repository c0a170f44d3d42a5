// Package server provides the HTTP API for Lumi.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/lumi/internal/agent"
	"github.com/hyperjump/lumi/internal/config"
	"github.com/hyperjump/lumi/internal/keyword"
	"github.com/hyperjump/lumi/internal/search"
	"github.com/hyperjump/lumi/internal/storage"
	"github.com/hyperjump/lumi/internal/vector"
)

// Server is the HTTP server for the Lumi API.
type Server struct {
	executor    *agent.Executor
	retriever   *search.Retriever
	storage     storage.Storage
	vectorIndex vector.VectorIndex
	spell       *keyword.SpellChecker
	config      *config.Config
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies. cfg feeds the status endpoint
// and the listen address.
func NewServer(
	executor *agent.Executor,
	retriever *search.Retriever,
	storage storage.Storage,
	vectorIndex vector.VectorIndex,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		executor:    executor,
		retriever:   retriever,
		storage:     storage,
		vectorIndex: vectorIndex,
		config:      cfg,
		logger:      logger,
	}
}

// WithSpellChecker enables query suggestions on the search endpoint.
func (s *Server) WithSpellChecker(sc *keyword.SpellChecker) *Server {
	s.spell = sc
	return s
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/chat", s.handleChat)
	r.Get("/api/v1/sessions/{id}/turns", s.handleSessionTurns)
	r.Delete("/api/v1/sessions/{id}", s.handleSessionReset)
	r.Post("/api/v1/search", s.handleSearch)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
