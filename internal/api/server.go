// Package api serves the engine's observability surface: Prometheus
// metrics, a health endpoint, and per-source crawl progress.
package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/news-ingest/internal/checkpoint"
	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/domain"
	"github.com/user/news-ingest/internal/monitoring"
)

// ProgressReporter exposes the live per-source crawl board.
type ProgressReporter interface {
	Progress() []domain.SourceReport
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	config      *config.Config
	router      http.Handler
	httpServer  *http.Server
	progress    ProgressReporter
	db          Pinger
	checkpoints checkpoint.Store
	metrics     *monitoring.Metrics
	logger      *zap.Logger
}

func NewServer(cfg *config.Config, progress ProgressReporter, db Pinger, cps checkpoint.Store, m *monitoring.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		config:      cfg,
		progress:    progress,
		db:          db,
		checkpoints: cps,
		metrics:     m,
		logger:      logger,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Engine.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
