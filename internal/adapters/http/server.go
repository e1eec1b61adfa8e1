// Package http serves the runs API, health and metrics endpoints, and
// the websocket progress feed.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/longregen/gepa/internal/adapters/http/handlers"
	"github.com/longregen/gepa/internal/adapters/http/middleware"
	"github.com/longregen/gepa/internal/config"
	"github.com/longregen/gepa/internal/ports"
	"github.com/longregen/gepa/internal/progress"
)

type Server struct {
	config      *config.Config
	router      *chi.Mux
	httpServer  *http.Server
	repo        ports.RunRepository
	db          *pgxpool.Pool
	lm          ports.LanguageModel
	broadcaster *progress.Broadcaster
	version     string
}

// NewServer wires the HTTP surface. repo and db may be nil when no
// database is configured; the runs API is then not mounted and the
// websocket feed accepts any run id.
func NewServer(
	cfg *config.Config,
	repo ports.RunRepository,
	db *pgxpool.Pool,
	lm ports.LanguageModel,
	broadcaster *progress.Broadcaster,
	version string,
) *Server {
	s := &Server{
		config:      cfg,
		repo:        repo,
		db:          db,
		lm:          lm,
		broadcaster: broadcaster,
		version:     version,
	}

	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(s.config.Server.CORSOrigins))
	r.Use(middleware.Metrics)

	healthHandler := handlers.NewHealthHandler(s.version, s.db, s.lm)
	r.Get("/healthz", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	if s.repo != nil {
		runsHandler := handlers.NewRunsHandler(s.repo)
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/runs", runsHandler.List)
			r.Get("/runs/{id}", runsHandler.Get)
			r.Get("/runs/{id}/candidates", runsHandler.GetCandidates)
			r.Get("/runs/{id}/best", runsHandler.GetBestCandidate)
			r.Get("/candidates/{id}/evaluations", runsHandler.GetEvaluations)
		})
	}

	if s.broadcaster != nil {
		streamHandler := handlers.NewRunStreamHandler(s.repo, s.broadcaster, s.config.Server.CORSOrigins)
		r.Get("/ws/runs/{id}", streamHandler.Handle)
	}

	s.router = r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for WebSocket streaming
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("starting http server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	slog.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
