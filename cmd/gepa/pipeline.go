package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/longregen/gepa/internal/pipeline"
)

// pipelineCmd provides subcommands for direct pipeline execution
func pipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the document pipeline directly",
	}

	cmd.AddCommand(pipelineRunCmd())

	return cmd
}

// pipelineRunCmd executes the pipeline on a single input document
func pipelineRunCmd() *cobra.Command {
	var promptsFile string
	var showTraces bool

	cmd := &cobra.Command{
		Use:   "run <input-file>",
		Short: "Execute the pipeline on one input document",
		Long: `Execute the order-graph pipeline on a single JSON input document and
print the resulting document. Stage instructions default to the built-in
prompts; --prompts overlays an optimized artifact.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}
			var input map[string]any
			if err := json.Unmarshal(data, &input); err != nil {
				return fmt.Errorf("failed to parse input file: %w", err)
			}

			if promptsFile == "" {
				promptsFile = cfg.Pipeline.PromptsFile
			}

			pipe := pipeline.NewOrderGraph()
			candidate, err := seedCandidate(pipe, promptsFile)
			if err != nil {
				return err
			}

			output, traces, err := pipe.ExecuteWithTraces(ctx, candidate, input)
			if err != nil {
				return fmt.Errorf("pipeline execution failed: %w", err)
			}

			if showTraces {
				w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "STAGE\tOK\tTIME\tERROR")
				fmt.Fprintln(w, "-----\t--\t----\t-----")
				for _, trace := range traces {
					okStr := "yes"
					if !trace.Success {
						okStr = "no"
					}
					fmt.Fprintf(w, "%s\t%s\t%.1fms\t%s\n",
						trace.StageName,
						okStr,
						trace.ExecutionTimeMs,
						trace.ErrorMessage,
					)
				}
				w.Flush()
				fmt.Fprintln(os.Stderr)
			}

			encoded, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal output: %w", err)
			}
			fmt.Println(string(encoded))

			return nil
		},
	}

	cmd.Flags().StringVar(&promptsFile, "prompts", "", "Optimized prompts artifact to overlay")
	cmd.Flags().BoolVar(&showTraces, "traces", false, "Print per-stage execution traces to stderr")

	return cmd
}
