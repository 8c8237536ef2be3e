// Package server provides the HTTP API for kiku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/storage"
)

// Ingestion is the ingestion pipeline used by the upload endpoint.
type Ingestion interface {
	Check(name string, params *models.ChunkParams) error
	ProcessFile(ctx context.Context, path string, params models.ChunkParams) ([]models.Chunk, error)
	Ingest(ctx context.Context, chunks []models.Chunk) (*models.IngestResult, error)
}

// Asker answers questions, routing statistics questions away from retrieval.
type Asker interface {
	Route(ctx context.Context, question string) (string, error)
}

// StatsSource computes corpus statistics.
type StatsSource interface {
	Scan(ctx context.Context) *models.CorpusStats
}

// Deps are the collaborators behind the API. Ledger may be nil.
type Deps struct {
	Ingestion Ingestion
	Asker     Asker
	Stats     StatsSource
	Ledger    storage.Ledger
}

// Server is the HTTP server for the kiku API.
type Server struct {
	deps   Deps
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{deps: deps, config: cfg, logger: logger}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  zap.NewStdLog(s.logger.Named("http")),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	if s.config.TimeoutSecs > 0 {
		r.Use(middleware.Timeout(time.Duration(s.config.TimeoutSecs) * time.Second))
	}
	r.Use(middleware.Compress(5))
	if len(s.config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Route("/ingest", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/status", s.handleStatus)
		r.Get("/orphans", s.handleOrphans)
		r.Get("/history", s.handleHistory)
	})
	r.Post("/rag/invoke", s.handleInvoke)
	r.Post("/api/v1/ask", s.handleAsk)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("stopping server")
		return s.server.Shutdown(ctx)
	}
	return nil
}
