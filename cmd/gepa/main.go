package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/longregen/gepa/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gepa",
		Short: "gepa - genetic-Pareto prompt optimizer",
		Long: `gepa evolves the stage instructions of a multi-stage document pipeline.
Candidates earn per-example validation scores, parents are drawn from the
Pareto frontier, and a reflection model rewrites one stage at a time.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			languageModel = newLanguageModel(cfg)

			return nil
		},
	}

	rootCmd.AddCommand(
		optimizeCmd(),
		pipelineCmd(),
		serveCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Current configuration:")
			fmt.Println()

			fmt.Println("LLM:")
			fmt.Printf("  URL:         %s\n", cfg.LLM.URL)
			fmt.Printf("  Model:       %s\n", cfg.LLM.Model)
			fmt.Printf("  Max Tokens:  %d\n", cfg.LLM.MaxTokens)
			fmt.Printf("  API Key:     %s\n", maskSecret(cfg.LLM.APIKey))
			fmt.Printf("  Offline:     %t\n", cfg.LLM.Offline)
			fmt.Println()

			fmt.Println("Database:")
			fmt.Printf("  PostgreSQL: %s\n", maskSecret(cfg.Database.URL))
			fmt.Println()

			fmt.Println("Server:")
			fmt.Printf("  Host: %s\n", cfg.Server.Host)
			fmt.Printf("  Port: %d\n", cfg.Server.Port)
			fmt.Println()

			fmt.Println("Optimizer:")
			fmt.Printf("  Run Name:        %s\n", cfg.Optimizer.RunName)
			fmt.Printf("  Budget:          %d rollouts\n", cfg.Optimizer.Budget)
			fmt.Printf("  Minibatch Size:  %d\n", cfg.Optimizer.MinibatchSize)
			fmt.Printf("  Max Candidates:  %d\n", cfg.Optimizer.MaxCandidates)
			fmt.Printf("  Merge Frequency: %d\n", cfg.Optimizer.MergeFrequency)
			fmt.Printf("  Parallelism:     %d\n", cfg.Optimizer.Parallelism)
			fmt.Printf("  Seed:            %d\n", cfg.Optimizer.Seed)
			fmt.Printf("  Output File:     %s\n", cfg.Optimizer.OutputFile)
			fmt.Println()

			fmt.Println("Dataset:")
			fmt.Printf("  Train: %s\n", cfg.Dataset.TrainFile)
			fmt.Printf("  Val:   %s\n", cfg.Dataset.ValFile)
			fmt.Println()

			fmt.Println("Environment variables:")
			fmt.Println("  GEPA_LLM_URL, GEPA_LLM_API_KEY, GEPA_LLM_MODEL, GEPA_LLM_OFFLINE")
			fmt.Println("  GEPA_DATABASE_URL")
			fmt.Println("  GEPA_SERVER_HOST, GEPA_SERVER_PORT, GEPA_CORS_ORIGINS")
			fmt.Println("  GEPA_OPTIMIZER_BUDGET, GEPA_OPTIMIZER_SEED, GEPA_OPTIMIZER_OUTPUT_FILE")
			fmt.Println("  GEPA_DATASET_TRAIN_FILE, GEPA_DATASET_VAL_FILE")

			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gepa %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}
