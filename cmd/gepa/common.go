package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/longregen/gepa/internal/adapters/postgres"
	"github.com/longregen/gepa/internal/artifact"
	"github.com/longregen/gepa/internal/config"
	"github.com/longregen/gepa/internal/domain/models"
	"github.com/longregen/gepa/internal/llm"
	"github.com/longregen/gepa/internal/pipeline"
	"github.com/longregen/gepa/internal/ports"
)

// Version information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// Shared global variables
var (
	cfg           *config.Config
	languageModel ports.LanguageModel
)

// newLanguageModel picks the configured language model adapter. Offline
// mode wins over any endpoint configuration.
func newLanguageModel(cfg *config.Config) ports.LanguageModel {
	if cfg.LLM.Offline {
		return llm.NewOffline()
	}

	return llm.NewOpenAI(
		cfg.LLM.URL,
		cfg.LLM.APIKey,
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
	)
}

// initDB opens a database pool for CLI commands that require persistence
func initDB(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("a PostgreSQL connection is required. Set GEPA_DATABASE_URL")
	}
	return postgres.Connect(ctx, cfg.Database.URL)
}

// seedCandidate builds the pipeline's starting candidate, optionally
// overlaying stage instructions from an optimized-prompts artifact.
func seedCandidate(pipe *pipeline.Pipeline, promptsFile string) (*models.Candidate, error) {
	seed := pipe.SeedCandidate()
	if promptsFile == "" {
		return seed, nil
	}

	prompts, err := artifact.Load(promptsFile)
	if err != nil {
		return nil, err
	}
	for name, prompt := range prompts {
		stage, ok := seed.Stage(name)
		if !ok {
			return nil, fmt.Errorf("prompts file stage %q does not exist in the pipeline", name)
		}
		stage.Instruction = prompt.Prompt
		stage.Version = prompt.Version
	}
	return seed, nil
}

// maskSecret masks a secret string for display
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "(set)"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
