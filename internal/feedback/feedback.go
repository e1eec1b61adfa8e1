// Package feedback produces the per-stage critique strings the optimizer
// feeds into its reflection prompt. Each supported stage compares the
// pipeline's output against the example's gold expectations and names what
// is missing, extra, or slow; stages without a specialized critique get a
// fixed placeholder.
package feedback

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/longregen/gepa/internal/domain/models"
	"github.com/longregen/gepa/internal/pipeline"
)

// OrderGraphFeedback critiques order-graph pipeline runs. It is stateless
// and safe for concurrent use.
type OrderGraphFeedback struct{}

func New() *OrderGraphFeedback {
	return &OrderGraphFeedback{}
}

// GenerateFeedback returns a critique of the stage at stageIndex in the
// trace list. Unknown stages and out-of-range indices produce the generic
// placeholder rather than an error.
func (f *OrderGraphFeedback) GenerateFeedback(_ context.Context, output, expected map[string]any, traces []models.StageTrace, stageIndex int) (string, error) {
	stageName := "unknown"
	if stageIndex >= 0 && stageIndex < len(traces) {
		stageName = traces[stageIndex].StageName
	}
	switch stageName {
	case pipeline.StageEntityExtraction:
		return f.entityExtraction(output, expected, traces), nil
	case pipeline.StageRelationshipMapping:
		return f.relationshipMapping(output, expected), nil
	case pipeline.StageAlertGeneration:
		return f.alertGeneration(output, expected), nil
	default:
		return "No specialized feedback.", nil
	}
}

func (f *OrderGraphFeedback) entityExtraction(output, expected map[string]any, traces []models.StageTrace) string {
	extracted := fieldSet(output["nodes"], "label")
	want := stringSet(expected["expected_nodes"])

	var parts []string
	if missing := sortedDiff(want, extracted); len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("MISSING ENTITIES: %v", missing))
		if containsString(missing, pipeline.LabelLineItem) {
			parts = append(parts, "Root cause likely: not reading nested 'selections' array. Fix: traverse order selections and payment contexts.")
		}
	}
	if extra := sortedDiff(extracted, want); len(extra) > 0 {
		parts = append(parts, fmt.Sprintf("EXTRA ENTITY LABELS: %v", extra))
	}
	for _, trace := range traces {
		if trace.StageName != pipeline.StageEntityExtraction {
			continue
		}
		if trace.ExecutionTimeMs > 1000 {
			parts = append(parts, fmt.Sprintf("PERF: stage took %.0fms; consider batching.", trace.ExecutionTimeMs))
		}
		break
	}
	return joinOrOK(parts)
}

func (f *OrderGraphFeedback) relationshipMapping(output, expected map[string]any) string {
	counts := make(map[string]int)
	for _, rel := range mapItems(output["relationships"]) {
		if relType, ok := rel["type"].(string); ok {
			counts[relType]++
		}
	}

	wanted, _ := expected["relationship_counts"].(map[string]any)
	var parts []string
	for _, relType := range sortedMapKeys(wanted) {
		want := intValue(wanted[relType])
		got := counts[relType]
		if float64(got) >= float64(want)*0.9 {
			continue
		}
		parts = append(parts, fmt.Sprintf("REL_MISSING: %s expected %d, got %d. Check join keys (order.guid).", relType, want, got))
		if relType == pipeline.RelPartOfOrder {
			parts = append(parts, "Fix: ensure each line_item.orderGuid === order.guid")
		}
	}
	return joinOrOK(parts)
}

func (f *OrderGraphFeedback) alertGeneration(output, expected map[string]any) string {
	detected := fieldSet(output["alerts"], "pattern_type")
	known := stringSet(expected["known_patterns"])

	var parts []string
	if missed := sortedDiff(known, detected); len(missed) > 0 {
		parts = append(parts, fmt.Sprintf("MISSED_PATTERNS: %v", missed))
		if containsString(missed, "rapid_refund") {
			parts = append(parts, "Add rule: refund within 5 minutes of order creation; threshold >3/day")
		}
	}
	return joinOrOK(parts)
}

func joinOrOK(parts []string) string {
	if len(parts) == 0 {
		return "OK"
	}
	return strings.Join(parts, "\n\n")
}

// fieldSet collects the named string field from a slice of records; records
// without the field contribute an empty-string member.
func fieldSet(raw any, field string) map[string]bool {
	set := make(map[string]bool)
	for _, rec := range mapItems(raw) {
		value, _ := rec[field].(string)
		set[value] = true
	}
	return set
}

func stringSet(raw any) map[string]bool {
	set := make(map[string]bool)
	switch items := raw.(type) {
	case []string:
		for _, s := range items {
			set[s] = true
		}
	case []any:
		for _, item := range items {
			if s, ok := item.(string); ok {
				set[s] = true
			}
		}
	}
	return set
}

// sortedDiff returns the members of a that are not in b, sorted.
func sortedDiff(a, b map[string]bool) []string {
	var out []string
	for member := range a {
		if !b[member] {
			out = append(out, member)
		}
	}
	sort.Strings(out)
	return out
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func mapItems(v any) []map[string]any {
	switch items := v.(type) {
	case []map[string]any:
		return items
	case []any:
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func sortedMapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
