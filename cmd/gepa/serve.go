package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/longregen/gepa/internal/adapters/http"
	"github.com/longregen/gepa/internal/adapters/postgres"
	"github.com/longregen/gepa/internal/adapters/tracing"
	"github.com/longregen/gepa/internal/ports"
	"github.com/longregen/gepa/internal/progress"
)

// serveCmd starts the HTTP API server
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the gepa HTTP API server.

The server exposes the optimization-runs query API, a health endpoint,
Prometheus metrics, and a websocket progress feed.

Optional configuration:
  - PostgreSQL (GEPA_DATABASE_URL) enables the runs API
  - LLM endpoint (GEPA_LLM_URL) is probed by the health check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// runServer initializes and starts the HTTP API server
func runServer(ctx context.Context) error {
	log.Println("Starting gepa API server...")
	log.Printf("  HTTP:     http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	if cfg.Database.URL != "" {
		log.Printf("  Database: %s", maskSecret(cfg.Database.URL))
	}
	if !cfg.LLM.Offline && cfg.LLM.URL != "" {
		log.Printf("  LLM:      %s", cfg.LLM.URL)
	}
	log.Println()

	shutdownTracing, err := tracing.InitTracer("gepa-api", version)
	if err != nil {
		log.Printf("Warning: failed to initialize tracing: %v", err)
	} else {
		defer func() {
			if err := shutdownTracing(ctx); err != nil {
				log.Printf("Error shutting down tracer: %v", err)
			}
		}()
	}

	var pool *pgxpool.Pool
	var repo ports.RunRepository
	if cfg.Database.URL != "" {
		log.Println("Connecting to PostgreSQL...")
		pool, err = postgres.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		repo = postgres.NewRunRepository(pool)
		log.Println("Database connection established")
	} else {
		log.Println("No database configured - runs API disabled")
	}

	broadcaster := progress.NewBroadcaster()

	server := http.NewServer(cfg, repo, pool, languageModel, broadcaster, version)

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	go func() {
		serverErrors <- server.Start()
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		log.Println("Shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		log.Println("Server stopped")
		return nil
	}
}
