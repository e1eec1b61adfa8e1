package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/gepa/internal/domain"
	"github.com/longregen/gepa/internal/domain/models"
)

func sampleOrderRecord() map[string]any {
	return map[string]any{
		"raw_json": map[string]any{
			"order": map[string]any{
				"guid":       "ord-1",
				"openedDate": "2024-03-01T12:00:00Z",
				"selections": []any{
					map[string]any{"guid": "sel-1", "orderGuid": "ord-1", "name": "Club Sandwich"},
					map[string]any{"guid": "sel-2", "orderGuid": "ord-1", "name": "Lemonade"},
				},
				"employee": map[string]any{"guid": "emp-1", "firstName": "Dana"},
			},
		},
	}
}

func TestNewOrderGraph(t *testing.T) {
	p := NewOrderGraph()

	t.Run("fixed stage order", func(t *testing.T) {
		assert.Equal(t, []string{
			StageSchemaDiscovery,
			StageEntityExtraction,
			StageRelationshipMapping,
			StageTemporalEnrichment,
			StageAlertGeneration,
			StageCypherGeneration,
		}, p.StageSequence())
	})

	t.Run("seed candidate carries defaults at version 1", func(t *testing.T) {
		seed := p.SeedCandidate()
		require.Equal(t, p.StageSequence(), seed.StageSequence)
		for _, name := range seed.StageSequence {
			cfg, ok := seed.Stage(name)
			require.True(t, ok, "missing config for %s", name)
			assert.Equal(t, name, cfg.Name)
			assert.NotEmpty(t, cfg.Instruction)
			assert.Equal(t, 1, cfg.Version)
		}
	})

	t.Run("seed candidates are independent copies", func(t *testing.T) {
		a := p.SeedCandidate()
		b := p.SeedCandidate()
		a.Stages[StageEntityExtraction].Instruction = "scribbled over"
		assert.NotEqual(t, a.Stages[StageEntityExtraction].Instruction,
			b.Stages[StageEntityExtraction].Instruction)
	})
}

func TestExecuteWithTraces(t *testing.T) {
	p := NewOrderGraph()
	ctx := context.Background()

	t.Run("full run over an order record", func(t *testing.T) {
		input := sampleOrderRecord()
		output, traces, err := p.ExecuteWithTraces(ctx, p.SeedCandidate(), input)
		require.NoError(t, err)
		require.Len(t, traces, 6)

		for i, trace := range traces {
			assert.True(t, trace.Success, "stage %d (%s) failed: %s", i, trace.StageName, trace.ErrorMessage)
			assert.Equal(t, p.StageSequence()[i], trace.StageName)
			assert.GreaterOrEqual(t, trace.ExecutionTimeMs, 0.0)
		}

		nodes := output["nodes"].([]map[string]any)
		require.Len(t, nodes, 4)
		assert.Equal(t, LabelOrder, nodes[0]["label"])
		assert.Equal(t, "ord-1", nodes[0]["guid"])
		assert.Equal(t, LabelLineItem, nodes[1]["label"])
		assert.Equal(t, LabelLineItem, nodes[2]["label"])
		assert.Equal(t, LabelEmployee, nodes[3]["label"])

		rels := output["relationships"].([]map[string]any)
		require.Len(t, rels, 2)
		for _, rel := range rels {
			assert.Equal(t, RelPartOfOrder, rel["type"])
			assert.Equal(t, "ord-1", rel["to"])
		}

		assert.Empty(t, output["alerts"])
		assert.Equal(t, []string{
			"UNWIND $batch AS row MERGE (n:Node {guid: row.guid}) SET n += row.props",
			"UNWIND $rels AS r MATCH (a {guid: r.from}), (b {guid: r.to}) MERGE (a)-[x:REL]->(b)",
		}, output["cypher_queries"])
	})

	t.Run("traces carry per-stage counters", func(t *testing.T) {
		_, traces, err := p.ExecuteWithTraces(ctx, p.SeedCandidate(), sampleOrderRecord())
		require.NoError(t, err)

		assert.Equal(t, 4, traces[1].NodesCreated)
		assert.Equal(t, 2, traces[2].RelationshipsCreated)
		assert.Len(t, traces[5].CypherQueries, 2)
	})

	t.Run("trace input is a snapshot of the accumulated document", func(t *testing.T) {
		_, traces, err := p.ExecuteWithTraces(ctx, p.SeedCandidate(), sampleOrderRecord())
		require.NoError(t, err)

		assert.NotContains(t, traces[0].InputData, "nodes")
		assert.Contains(t, traces[2].InputData, "nodes")
		assert.NotContains(t, traces[2].InputData, "cypher_queries")
	})

	t.Run("caller input map is not mutated", func(t *testing.T) {
		input := sampleOrderRecord()
		_, _, err := p.ExecuteWithTraces(ctx, p.SeedCandidate(), input)
		require.NoError(t, err)
		assert.NotContains(t, input, "nodes")
		assert.NotContains(t, input, "cypher_queries")
	})

	t.Run("deterministic across runs", func(t *testing.T) {
		out1, _, err := p.ExecuteWithTraces(ctx, p.SeedCandidate(), sampleOrderRecord())
		require.NoError(t, err)
		out2, _, err := p.ExecuteWithTraces(ctx, p.SeedCandidate(), sampleOrderRecord())
		require.NoError(t, err)
		assert.Equal(t, out1, out2)
	})

	t.Run("instruction text does not change heuristic behavior", func(t *testing.T) {
		seed := p.SeedCandidate()
		mutated, err := seed.WithInstruction(StageEntityExtraction, "completely rewritten instruction")
		require.NoError(t, err)

		base, _, err := p.ExecuteWithTraces(ctx, seed, sampleOrderRecord())
		require.NoError(t, err)
		got, _, err := p.ExecuteWithTraces(ctx, mutated, sampleOrderRecord())
		require.NoError(t, err)

		assert.Equal(t, base, got)
		assert.Equal(t, 2, mutated.Stages[StageEntityExtraction].Version)
	})

	t.Run("nil candidate rejected", func(t *testing.T) {
		_, _, err := p.ExecuteWithTraces(ctx, nil, sampleOrderRecord())
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("candidate naming an unimplemented stage", func(t *testing.T) {
		bogus := models.NewCandidate([]string{"bogus"}, map[string]*models.StageConfig{
			"bogus": models.NewStageConfig("bogus", "no such stage", nil, nil),
		})
		_, _, err := p.ExecuteWithTraces(ctx, bogus, sampleOrderRecord())
		assert.ErrorIs(t, err, domain.ErrUnknownStage)
	})

	t.Run("candidate missing a stage config", func(t *testing.T) {
		broken := &models.Candidate{
			StageSequence: []string{StageSchemaDiscovery},
			Stages:        map[string]*models.StageConfig{},
		}
		_, _, err := p.ExecuteWithTraces(ctx, broken, sampleOrderRecord())
		assert.ErrorIs(t, err, domain.ErrStageNotFound)
	})

	t.Run("cancelled context stops before the next stage", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		_, traces, err := p.ExecuteWithTraces(cancelled, p.SeedCandidate(), sampleOrderRecord())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, traces)
	})
}

func TestExecuteWithTracesStageFailure(t *testing.T) {
	marker := Stage{
		Config: models.NewStageConfig("marker", "adds a marker key", nil, nil),
		Run: func(_ context.Context, _ *models.StageConfig, _ map[string]any) (map[string]any, error) {
			return map[string]any{"marker": true}, nil
		},
	}
	exploding := Stage{
		Config: models.NewStageConfig("exploding", "always fails", nil, nil),
		Run: func(_ context.Context, _ *models.StageConfig, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("boom")
		},
	}
	unreached := Stage{
		Config: models.NewStageConfig("unreached", "never runs", nil, nil),
		Run: func(_ context.Context, _ *models.StageConfig, _ map[string]any) (map[string]any, error) {
			t.Fatal("stage after a failure must not run")
			return nil, nil
		},
	}

	p, err := New(marker, exploding, unreached)
	require.NoError(t, err)

	output, traces, err := p.ExecuteWithTraces(context.Background(), p.SeedCandidate(), map[string]any{"k": "v"})
	require.NoError(t, err, "stage failures are reported in traces, not as errors")

	require.Len(t, traces, 2)
	assert.True(t, traces[0].Success)
	assert.False(t, traces[1].Success)
	assert.Equal(t, "boom", traces[1].ErrorMessage)
	assert.Empty(t, traces[1].OutputData)

	assert.Equal(t, true, output["marker"], "output keeps successful stages' work")
	assert.Equal(t, "v", output["k"])
}

func TestNewValidation(t *testing.T) {
	valid := Stage{
		Config: models.NewStageConfig("ok", "does nothing", nil, nil),
		Run: func(_ context.Context, _ *models.StageConfig, _ map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		},
	}

	t.Run("no stages", func(t *testing.T) {
		_, err := New()
		assert.ErrorIs(t, err, domain.ErrEmptyStageSequence)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := New(Stage{Run: valid.Run})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("missing implementation", func(t *testing.T) {
		_, err := New(Stage{Config: models.NewStageConfig("ok", "no func", nil, nil)})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("duplicate names", func(t *testing.T) {
		_, err := New(valid, valid)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
