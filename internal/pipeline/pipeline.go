// Package pipeline implements the order-graph ETL pipeline: a fixed
// sequence of stages that turn a raw point-of-sale order record into
// property-graph nodes, relationships, alerts, and Cypher statements.
//
// Stage implementations are heuristic placeholders with well-defined
// outputs; the instruction text each stage carries is the optimizable
// surface, versioned per candidate and rewritten by the optimizer.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/longregen/gepa/internal/domain"
	"github.com/longregen/gepa/internal/domain/models"
)

// StageFunc executes one pipeline stage over the accumulated document and
// returns the stage's own output map. Implementations must not mutate doc;
// the pipeline merges the returned output into the document itself.
type StageFunc func(ctx context.Context, cfg *models.StageConfig, doc map[string]any) (map[string]any, error)

// Stage pairs a stage's default configuration with its implementation.
type Stage struct {
	Config *models.StageConfig
	Run    StageFunc
}

// Pipeline executes candidates over raw order records. The stage set is
// fixed at construction; candidates supply the per-stage instruction text
// and version that travel with each execution.
type Pipeline struct {
	sequence []string
	run      map[string]StageFunc
	defaults map[string]*models.StageConfig
}

// New builds a pipeline from an ordered stage list.
func New(stages ...Stage) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, domain.ErrEmptyStageSequence
	}
	p := &Pipeline{
		sequence: make([]string, 0, len(stages)),
		run:      make(map[string]StageFunc, len(stages)),
		defaults: make(map[string]*models.StageConfig, len(stages)),
	}
	for _, stage := range stages {
		if stage.Config == nil || stage.Config.Name == "" {
			return nil, fmt.Errorf("stage config missing name: %w", domain.ErrInvalidInput)
		}
		if stage.Run == nil {
			return nil, fmt.Errorf("stage %q has no implementation: %w", stage.Config.Name, domain.ErrInvalidInput)
		}
		name := stage.Config.Name
		if _, dup := p.run[name]; dup {
			return nil, fmt.Errorf("duplicate stage %q: %w", name, domain.ErrInvalidInput)
		}
		p.sequence = append(p.sequence, name)
		p.run[name] = stage.Run
		p.defaults[name] = stage.Config.Clone()
	}
	return p, nil
}

// StageSequence returns the pipeline's fixed, ordered stage names.
func (p *Pipeline) StageSequence() []string {
	return append([]string(nil), p.sequence...)
}

// SeedCandidate returns a fresh candidate carrying every stage's default
// instruction at version 1. Each call returns an independent copy.
func (p *Pipeline) SeedCandidate() *models.Candidate {
	return models.NewCandidate(p.sequence, p.defaults)
}

// ExecuteWithTraces runs the candidate's stage sequence over one raw input.
// Each successful stage's output is merged into an accumulating document
// that later stages (and the final score) read from. Execution stops at the
// first failing stage; the returned traces cover every stage attempted, in
// order. A non-nil error means the execution could not be set up at all,
// not that a stage failed.
func (p *Pipeline) ExecuteWithTraces(ctx context.Context, candidate *models.Candidate, input map[string]any) (map[string]any, []models.StageTrace, error) {
	if candidate == nil || len(candidate.StageSequence) == 0 {
		return nil, nil, fmt.Errorf("candidate has no stages: %w", domain.ErrInvalidInput)
	}

	doc := make(map[string]any, len(input))
	for k, v := range input {
		doc[k] = v
	}

	traces := make([]models.StageTrace, 0, len(candidate.StageSequence))
	for _, name := range candidate.StageSequence {
		if err := ctx.Err(); err != nil {
			return doc, traces, err
		}
		run, ok := p.run[name]
		if !ok {
			return doc, traces, fmt.Errorf("stage %q: %w", name, domain.ErrUnknownStage)
		}
		cfg, ok := candidate.Stage(name)
		if !ok {
			return doc, traces, fmt.Errorf("stage %q: %w", name, domain.ErrStageNotFound)
		}

		trace := p.executeStage(ctx, name, run, cfg, doc)
		traces = append(traces, trace)
		if !trace.Success {
			slog.WarnContext(ctx, "pipeline stage failed",
				"stage", name,
				"error", trace.ErrorMessage)
			break
		}
		for k, v := range trace.OutputData {
			doc[k] = v
		}
	}
	return doc, traces, nil
}

func (p *Pipeline) executeStage(ctx context.Context, name string, run StageFunc, cfg *models.StageConfig, doc map[string]any) models.StageTrace {
	snapshot := make(map[string]any, len(doc))
	for k, v := range doc {
		snapshot[k] = v
	}

	start := time.Now()
	output, err := run(ctx, cfg, doc)
	elapsed := time.Since(start).Seconds() * 1000

	if err != nil {
		return models.StageTrace{
			StageName:       name,
			InputData:       snapshot,
			OutputData:      map[string]any{},
			ExecutionTimeMs: elapsed,
			Success:         false,
			ErrorMessage:    err.Error(),
		}
	}
	return models.StageTrace{
		StageName:            name,
		InputData:            snapshot,
		OutputData:           output,
		ExecutionTimeMs:      elapsed,
		Success:              true,
		CypherQueries:        stringsAt(output, "cypher_queries"),
		NodesCreated:         intAt(output, "nodes_created"),
		RelationshipsCreated: intAt(output, "relationships_created"),
	}
}

func intAt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func stringsAt(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
