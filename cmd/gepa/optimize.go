package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	gepahttp "github.com/longregen/gepa/internal/adapters/http"
	"github.com/longregen/gepa/internal/adapters/id"
	"github.com/longregen/gepa/internal/adapters/metrics"
	"github.com/longregen/gepa/internal/adapters/postgres"
	"github.com/longregen/gepa/internal/adapters/tracing"
	"github.com/longregen/gepa/internal/artifact"
	"github.com/longregen/gepa/internal/dataset"
	"github.com/longregen/gepa/internal/feedback"
	"github.com/longregen/gepa/internal/optimizer"
	"github.com/longregen/gepa/internal/pipeline"
	"github.com/longregen/gepa/internal/ports"
	"github.com/longregen/gepa/internal/progress"
)

// optimizeCmd provides subcommands for optimization runs
func optimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run and inspect prompt optimizations",
		Long: `Run genetic-Pareto prompt optimizations and inspect recorded runs.

Subcommands:
  run         Run a new optimization
  list        List recorded optimization runs
  show        Show details of a specific run
  candidates  List candidates for a run
  best        Show the best candidate for a run`,
	}

	cmd.AddCommand(
		optimizeRunCmd(),
		optimizeListCmd(),
		optimizeShowCmd(),
		optimizeCandidatesCmd(),
		optimizeBestCmd(),
	)

	return cmd
}

// optimizeRunCmd executes a full optimization run
func optimizeRunCmd() *cobra.Command {
	var (
		trainFile   string
		valFile     string
		budget      int
		name        string
		seed        int64
		output      string
		promptsFile string
		serve       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a prompt optimization",
		Long: `Run a genetic-Pareto optimization of the pipeline's stage prompts.

The training set drives minibatch screening and reflection; the validation
set scores candidates for Pareto parent selection. The best candidate's
prompts are written to a YAML artifact, and the run is recorded in
PostgreSQL when a database is configured.

Interrupting the run with Ctrl-C stops it between iterations and keeps
the best candidate found so far.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if trainFile == "" {
				trainFile = cfg.Dataset.TrainFile
			}
			if valFile == "" {
				valFile = cfg.Dataset.ValFile
			}
			if trainFile == "" || valFile == "" {
				return fmt.Errorf("train and validation datasets are required (--train/--val or GEPA_DATASET_TRAIN_FILE/GEPA_DATASET_VAL_FILE)")
			}
			if budget <= 0 {
				budget = cfg.Optimizer.Budget
			}
			if name == "" {
				name = cfg.Optimizer.RunName
			}
			if seed == 0 {
				seed = cfg.Optimizer.Seed
			}
			if output == "" {
				output = cfg.Optimizer.OutputFile
			}

			shutdownTracing, err := tracing.InitTracer("gepa", version)
			if err != nil {
				log.Printf("Warning: failed to initialize tracing: %v", err)
			} else {
				defer func() {
					if err := shutdownTracing(context.Background()); err != nil {
						log.Printf("Error shutting down tracer: %v", err)
					}
				}()
			}

			train, err := dataset.Load(trainFile)
			if err != nil {
				return err
			}
			val, err := dataset.Load(valFile)
			if err != nil {
				return err
			}
			log.Printf("Loaded %d training and %d validation examples", len(train), len(val))

			pipe := pipeline.NewOrderGraph()
			seedCand, err := seedCandidate(pipe, promptsFile)
			if err != nil {
				return err
			}
			baseline := artifact.FromCandidate(seedCand)

			mutator := optimizer.NewReflectiveMutator(
				languageModel,
				optimizer.WithTemperature(cfg.Optimizer.ReflectionTemperature),
			)

			opts := optimizer.Options{
				RunName:        name,
				MinibatchSize:  cfg.Optimizer.MinibatchSize,
				MergeFrequency: cfg.Optimizer.MergeFrequency,
				MaxCandidates:  cfg.Optimizer.MaxCandidates,
				AncestorDepth:  cfg.Optimizer.AncestorDepth,
				Parallelism:    cfg.Optimizer.Parallelism,
				Seed:           seed,
			}

			opt := optimizer.New(pipe, feedback.New(), mutator, opts)

			var repo ports.RunRepository
			if cfg.Database.URL != "" {
				pool, err := postgres.Connect(ctx, cfg.Database.URL)
				if err != nil {
					return err
				}
				defer pool.Close()

				repo = postgres.NewRunRepository(pool)
				opt = opt.WithRepository(repo, id.New())
				log.Println("Recording run to PostgreSQL")
			}

			recorder := metrics.NewProgressRecorder()
			if serve {
				broadcaster := progress.NewBroadcaster()
				opt = opt.WithProgressPublisher(progress.NewFanout(broadcaster, recorder))

				server := gepahttp.NewServer(cfg, repo, nil, languageModel, broadcaster, version)
				go func() {
					if err := server.Start(); err != nil {
						log.Printf("Progress server stopped: %v", err)
					}
				}()
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := server.Stop(stopCtx); err != nil {
						log.Printf("Error stopping progress server: %v", err)
					}
				}()
				log.Printf("Progress feed available at ws://%s:%d/ws/runs/{id}", cfg.Server.Host, cfg.Server.Port)
			} else {
				opt = opt.WithProgressPublisher(recorder)
			}

			result, runErr := opt.Run(ctx, seedCand, train, val, budget)
			if runErr != nil {
				if result == nil {
					return fmt.Errorf("optimization failed: %w", runErr)
				}
				log.Printf("Optimization interrupted (%v); keeping best candidate found so far", runErr)
			}

			fmt.Println()
			if result.RunID != "" {
				fmt.Printf("Optimization Run: %s\n", result.RunID)
			}
			fmt.Printf("Iterations:    %d\n", result.Iterations)
			fmt.Printf("Accepted:      %d\n", result.Accepted)
			fmt.Printf("Rollouts Used: %d / %d\n", result.RolloutsUsed, budget)
			fmt.Printf("Pool Size:     %d\n", result.PoolSize)
			fmt.Printf("Best Score:    %.4f\n", result.BestScore)

			if changed := artifact.Diff(baseline, artifact.FromCandidate(result.Best)); len(changed) > 0 {
				fmt.Printf("Stages Changed: %s\n", strings.Join(changed, ", "))
			} else {
				fmt.Println("Stages Changed: none (seed prompts remain best)")
			}

			if err := artifact.Write(output, result.Best); err != nil {
				return fmt.Errorf("failed to write optimized prompts: %w", err)
			}
			fmt.Printf("Optimized prompts written to %s\n", output)

			return nil
		},
	}

	cmd.Flags().StringVar(&trainFile, "train", "", "Training dataset file, JSON or YAML (default from config)")
	cmd.Flags().StringVar(&valFile, "val", "", "Validation dataset file, JSON or YAML (default from config)")
	cmd.Flags().IntVarP(&budget, "budget", "b", 0, "Rollout budget (default from config)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Run name (default from config)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file for optimized prompts (default from config)")
	cmd.Flags().StringVar(&promptsFile, "prompts", "", "Seed stage instructions from an existing artifact")
	cmd.Flags().BoolVar(&serve, "serve", false, "Serve the websocket progress feed while the run executes")

	return cmd
}

// optimizeListCmd lists recorded optimization runs
func optimizeListCmd() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List optimization runs",
		Long:  `List recorded optimization runs with optional filtering by status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, err := initDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := postgres.NewRunRepository(pool)
			runs, err := repo.ListRuns(ctx, status, limit, 0)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if len(runs) == 0 {
				fmt.Println("No optimization runs found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tITERATIONS\tROLLOUTS\tBEST SCORE\tSTARTED\tCOMPLETED")
			fmt.Fprintln(w, "--\t----\t------\t----------\t--------\t----------\t-------\t---------")

			for _, run := range runs {
				completedStr := "N/A"
				if run.CompletedAt != nil {
					completedStr = run.CompletedAt.Format("2006-01-02 15:04")
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%.4f\t%s\t%s\n",
					run.ID,
					run.Name,
					run.Status,
					run.Iterations,
					run.RolloutsUsed,
					run.Budget,
					run.BestScore,
					run.StartedAt.Format("2006-01-02 15:04"),
					completedStr,
				)
			}

			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (running, completed, failed)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of runs to list")

	return cmd
}

// optimizeShowCmd shows details of a specific optimization run
func optimizeShowCmd() *cobra.Command {
	var showJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show optimization run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID := args[0]

			pool, err := initDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := postgres.NewRunRepository(pool)
			run, err := repo.GetRun(ctx, runID)
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			if showJSON {
				data, err := json.MarshalIndent(run, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal JSON: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Optimization Run: %s\n", run.ID)
			fmt.Printf("Name:        %s\n", run.Name)
			if run.Description != "" {
				fmt.Printf("Description: %s\n", run.Description)
			}
			fmt.Printf("Status:      %s\n", run.Status)
			fmt.Printf("Budget:      %d rollouts (%d used)\n", run.Budget, run.RolloutsUsed)
			fmt.Printf("Iterations:  %d\n", run.Iterations)
			fmt.Printf("Best Score:  %.4f\n", run.BestScore)
			fmt.Printf("Seed:        %d\n", run.Seed)
			fmt.Printf("Examples:    %d train / %d val\n", run.TrainExamples, run.ValExamples)
			fmt.Printf("Started:     %s\n", run.StartedAt.Format(time.RFC3339))
			if run.CompletedAt != nil {
				fmt.Printf("Completed:   %s\n", run.CompletedAt.Format(time.RFC3339))
			}
			if run.Error != "" {
				fmt.Printf("Error:       %s\n", run.Error)
			}

			if len(run.Config) > 0 {
				fmt.Println()
				fmt.Println("Configuration:")
				keys := make([]string, 0, len(run.Config))
				for key := range run.Config {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				for _, key := range keys {
					fmt.Printf("  %s: %v\n", key, run.Config[key])
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	return cmd
}

// optimizeCandidatesCmd lists candidates for a run
func optimizeCandidatesCmd() *cobra.Command {
	var showJSON bool

	cmd := &cobra.Command{
		Use:   "candidates <run-id>",
		Short: "List candidates for a run",
		Long:  `List the accepted candidates recorded during an optimization run.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID := args[0]

			pool, err := initDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := postgres.NewRunRepository(pool)
			candidates, err := repo.GetCandidates(ctx, runID)
			if err != nil {
				return fmt.Errorf("failed to get candidates: %w", err)
			}

			if len(candidates) == 0 {
				fmt.Println("No candidates found for this run.")
				return nil
			}

			if showJSON {
				data, err := json.MarshalIndent(candidates, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal JSON: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tITERATION\tPARENT\tMEAN SCORE\tVAL SCORES\tCREATED")
			fmt.Fprintln(w, "--\t---------\t------\t----------\t----------\t-------")

			for _, candidate := range candidates {
				parent := candidate.ParentID
				if parent == "" {
					parent = "(seed)"
				}

				fmt.Fprintf(w, "%s\t%d\t%s\t%.4f\t%d\t%s\n",
					candidate.ID,
					candidate.Iteration,
					parent,
					candidate.MeanScore,
					len(candidate.Scores),
					candidate.CreatedAt.Format("2006-01-02 15:04"),
				)
			}

			w.Flush()
			return nil
		},
	}

	cmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	return cmd
}

// optimizeBestCmd shows the best candidate for a run
func optimizeBestCmd() *cobra.Command {
	var showPrompts bool

	cmd := &cobra.Command{
		Use:   "best <run-id>",
		Short: "Show the best candidate for a run",
		Long:  `Show the highest-scoring candidate recorded for an optimization run.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID := args[0]

			pool, err := initDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := postgres.NewRunRepository(pool)
			candidate, err := repo.GetBestCandidate(ctx, runID)
			if err != nil {
				return fmt.Errorf("failed to get best candidate: %w", err)
			}

			fmt.Printf("Best Candidate: %s\n", candidate.ID)
			fmt.Printf("Run:            %s\n", candidate.RunID)
			fmt.Printf("Iteration:      %d\n", candidate.Iteration)
			if candidate.ParentID != "" {
				fmt.Printf("Parent:         %s\n", candidate.ParentID)
			}
			fmt.Printf("Mean Score:     %.4f\n", candidate.MeanScore)
			if len(candidate.Scores) > 0 {
				fmt.Printf("Val Scores:     %d examples\n", len(candidate.Scores))
			}
			fmt.Println()

			names := make([]string, 0, len(candidate.Stages))
			for name := range candidate.Stages {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				stage := candidate.Stages[name]
				fmt.Printf("Stage: %s (v%d)\n", name, stage.Version)
				if showPrompts {
					fmt.Println("---")
					fmt.Println(stage.Instruction)
					fmt.Println("---")
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&showPrompts, "prompts", "p", false, "Show the full stage instructions")

	return cmd
}
