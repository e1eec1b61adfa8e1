package feedback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/gepa/internal/domain/models"
	"github.com/longregen/gepa/internal/pipeline"
)

func tracesFor(names ...string) []models.StageTrace {
	traces := make([]models.StageTrace, 0, len(names))
	for _, name := range names {
		traces = append(traces, models.StageTrace{StageName: name, Success: true})
	}
	return traces
}

func TestGenerateFeedbackDispatch(t *testing.T) {
	gen := New()
	ctx := context.Background()

	t.Run("stages without a specialized critique", func(t *testing.T) {
		traces := tracesFor(pipeline.StageSchemaDiscovery, pipeline.StageTemporalEnrichment)
		for i := range traces {
			text, err := gen.GenerateFeedback(ctx, map[string]any{}, map[string]any{}, traces, i)
			require.NoError(t, err)
			assert.Equal(t, "No specialized feedback.", text)
		}
	})

	t.Run("index past the trace list", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx, map[string]any{}, map[string]any{},
			tracesFor(pipeline.StageSchemaDiscovery), 4)
		require.NoError(t, err)
		assert.Equal(t, "No specialized feedback.", text)
	})

	t.Run("negative index", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx, map[string]any{}, map[string]any{},
			tracesFor(pipeline.StageEntityExtraction), -1)
		require.NoError(t, err)
		assert.Equal(t, "No specialized feedback.", text)
	})

	t.Run("no traces at all", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx, map[string]any{}, map[string]any{}, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, "No specialized feedback.", text)
	})
}

func TestEntityExtractionFeedback(t *testing.T) {
	gen := New()
	ctx := context.Background()
	traces := tracesFor(pipeline.StageSchemaDiscovery, pipeline.StageEntityExtraction)

	output := func(labels ...string) map[string]any {
		nodes := make([]map[string]any, 0, len(labels))
		for _, label := range labels {
			nodes = append(nodes, map[string]any{"label": label})
		}
		return map[string]any{"nodes": nodes}
	}
	expected := func(labels ...string) map[string]any {
		return map[string]any{"expected_nodes": labels}
	}

	t.Run("all expected labels present", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			output(pipeline.LabelOrder, pipeline.LabelLineItem),
			expected(pipeline.LabelOrder, pipeline.LabelLineItem), traces, 1)
		require.NoError(t, err)
		assert.Equal(t, "OK", text)
	})

	t.Run("missing line items name the selections root cause", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			output(pipeline.LabelOrder),
			expected(pipeline.LabelOrder, pipeline.LabelLineItem), traces, 1)
		require.NoError(t, err)
		assert.Contains(t, text, "MISSING ENTITIES: [OrderLineItem]")
		assert.Contains(t, text, "not reading nested 'selections' array")
	})

	t.Run("missing labels sorted, no hint for other labels", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			output(),
			expected(pipeline.LabelOrder, pipeline.LabelEmployee), traces, 1)
		require.NoError(t, err)
		assert.Contains(t, text, "MISSING ENTITIES: [Employee Order]")
		assert.NotContains(t, text, "selections")
	})

	t.Run("extra labels reported", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			output(pipeline.LabelOrder, "Discount"),
			expected(pipeline.LabelOrder), traces, 1)
		require.NoError(t, err)
		assert.Equal(t, "EXTRA ENTITY LABELS: [Discount]", text)
	})

	t.Run("missing and extra joined by blank lines", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			output("Discount"),
			expected(pipeline.LabelOrder), traces, 1)
		require.NoError(t, err)
		assert.Equal(t, "MISSING ENTITIES: [Order]\n\nEXTRA ENTITY LABELS: [Discount]", text)
	})

	t.Run("slow extraction adds a perf note", func(t *testing.T) {
		slow := tracesFor(pipeline.StageSchemaDiscovery, pipeline.StageEntityExtraction)
		slow[1].ExecutionTimeMs = 1500
		text, err := gen.GenerateFeedback(ctx,
			output(pipeline.LabelOrder),
			expected(pipeline.LabelOrder), slow, 1)
		require.NoError(t, err)
		assert.Equal(t, "PERF: stage took 1500ms; consider batching.", text)
	})

	t.Run("fast extraction has no perf note", func(t *testing.T) {
		fast := tracesFor(pipeline.StageEntityExtraction)
		fast[0].ExecutionTimeMs = 999
		text, err := gen.GenerateFeedback(ctx,
			output(pipeline.LabelOrder),
			expected(pipeline.LabelOrder), fast, 0)
		require.NoError(t, err)
		assert.Equal(t, "OK", text)
	})
}

func TestRelationshipMappingFeedback(t *testing.T) {
	gen := New()
	ctx := context.Background()
	traces := tracesFor(pipeline.StageRelationshipMapping)

	rels := func(n int) []map[string]any {
		out := make([]map[string]any, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, map[string]any{"type": pipeline.RelPartOfOrder})
		}
		return out
	}

	t.Run("counts met", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			map[string]any{"relationships": rels(3)},
			map[string]any{"relationship_counts": map[string]any{pipeline.RelPartOfOrder: 3}},
			traces, 0)
		require.NoError(t, err)
		assert.Equal(t, "OK", text)
	})

	t.Run("shortfall names the join key", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			map[string]any{"relationships": rels(1)},
			map[string]any{"relationship_counts": map[string]any{pipeline.RelPartOfOrder: 3}},
			traces, 0)
		require.NoError(t, err)
		assert.Contains(t, text, "REL_MISSING: IS_PART_OF_ORDER_HEADER expected 3, got 1. Check join keys (order.guid).")
		assert.Contains(t, text, "Fix: ensure each line_item.orderGuid === order.guid")
	})

	t.Run("ninety percent of expected is close enough", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			map[string]any{"relationships": rels(9)},
			map[string]any{"relationship_counts": map[string]any{pipeline.RelPartOfOrder: 10}},
			traces, 0)
		require.NoError(t, err)
		assert.Equal(t, "OK", text)
	})

	t.Run("other relationship types get no fix hint", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			map[string]any{"relationships": []map[string]any{}},
			map[string]any{"relationship_counts": map[string]any{"SERVED_BY": 2}},
			traces, 0)
		require.NoError(t, err)
		assert.Equal(t, "REL_MISSING: SERVED_BY expected 2, got 0. Check join keys (order.guid).", text)
	})

	t.Run("json-decoded float counts", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			map[string]any{"relationships": rels(1)},
			map[string]any{"relationship_counts": map[string]any{pipeline.RelPartOfOrder: float64(2)}},
			traces, 0)
		require.NoError(t, err)
		assert.Contains(t, text, "expected 2, got 1")
	})

	t.Run("no expectations", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			map[string]any{"relationships": rels(1)},
			map[string]any{},
			traces, 0)
		require.NoError(t, err)
		assert.Equal(t, "OK", text)
	})
}

func TestAlertGenerationFeedback(t *testing.T) {
	gen := New()
	ctx := context.Background()
	traces := tracesFor(pipeline.StageAlertGeneration)

	t.Run("all patterns detected", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			map[string]any{"alerts": []map[string]any{{"pattern_type": "void_abuse"}}},
			map[string]any{"known_patterns": []string{"void_abuse"}},
			traces, 0)
		require.NoError(t, err)
		assert.Equal(t, "OK", text)
	})

	t.Run("missed rapid_refund names the rule to add", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			map[string]any{"alerts": []map[string]any{}},
			map[string]any{"known_patterns": []string{"rapid_refund"}},
			traces, 0)
		require.NoError(t, err)
		assert.Contains(t, text, "MISSED_PATTERNS: [rapid_refund]")
		assert.Contains(t, text, "refund within 5 minutes of order creation")
	})

	t.Run("other missed patterns get no rule hint", func(t *testing.T) {
		text, err := gen.GenerateFeedback(ctx,
			map[string]any{"alerts": []map[string]any{}},
			map[string]any{"known_patterns": []any{"void_abuse"}},
			traces, 0)
		require.NoError(t, err)
		assert.Equal(t, "MISSED_PATTERNS: [void_abuse]", text)
	})
}
