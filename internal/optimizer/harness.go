package optimizer

import (
	"context"
	"log/slog"

	"github.com/longregen/gepa/internal/domain/models"
	"github.com/longregen/gepa/internal/ports"
)

// EvaluationHarness runs candidates over examples and reduces structured
// pipeline output to a scalar quality score in [0,1].
type EvaluationHarness struct {
	pipeline ports.Pipeline
}

func NewEvaluationHarness(pipeline ports.Pipeline) *EvaluationHarness {
	return &EvaluationHarness{pipeline: pipeline}
}

// Evaluate runs the candidate's pipeline on one example and scores the
// output against the example's expected fields. Any execution failure is
// absorbed as a score of 0.0; the error is still returned so callers can
// track success rates, but it never aborts an optimization run.
func (h *EvaluationHarness) Evaluate(ctx context.Context, candidate *models.Candidate, example models.Example) (float64, error) {
	output, _, err := h.pipeline.ExecuteWithTraces(ctx, candidate, example.Input)
	if err != nil {
		slog.WarnContext(ctx, "example execution failed, scoring 0",
			"error", err)
		return 0.0, err
	}
	return h.Score(output, example.Expected), nil
}

// Score combines up to four independent sub-scores, each applied only when
// output and expected both carry the relevant field, and averages whichever
// apply. With no applicable sub-score the result is 0.
//
//   - set F1 between extracted node labels and expected_nodes;
//   - recall of relationship types over expected_relationships;
//   - recall of alert pattern types over known_patterns (vacuously 1.0
//     when no patterns are expected);
//   - a binary presence check on generated cypher_queries.
func (h *EvaluationHarness) Score(output, expected map[string]any) float64 {
	var scores []float64

	if rawNodes, ok := output["nodes"]; ok {
		if rawExpected, ok2 := expected["expected_nodes"]; ok2 {
			extracted := labelSet(rawNodes, "label")
			want := stringSet(rawExpected)
			scores = append(scores, setF1(extracted, want))
		}
	}

	if rawRels, ok := output["relationships"]; ok {
		if rawExpected, ok2 := expected["expected_relationships"]; ok2 {
			created := labelSet(rawRels, "type")
			want := labelSet(rawExpected, "type")
			scores = append(scores, setRecall(created, want, 0.0))
		}
	}

	if rawAlerts, ok := output["alerts"]; ok {
		if rawKnown, ok2 := expected["known_patterns"]; ok2 {
			detected := labelSet(rawAlerts, "pattern_type")
			known := stringSet(rawKnown)
			scores = append(scores, setRecall(detected, known, 1.0))
		}
	}

	if rawQueries, ok := output["cypher_queries"]; ok {
		if len(stringList(rawQueries)) > 0 {
			scores = append(scores, 1.0)
		} else {
			scores = append(scores, 0.0)
		}
	}

	return mean(scores)
}

// setF1 is the harmonic mean of set precision and recall.
func setF1(got, want map[string]bool) float64 {
	inter := intersectionSize(got, want)
	var prec, rec float64
	if len(got) > 0 {
		prec = float64(inter) / float64(len(got))
	}
	if len(want) > 0 {
		rec = float64(inter) / float64(len(want))
	}
	if prec+rec == 0 {
		return 0.0
	}
	return 2 * prec * rec / (prec + rec)
}

// setRecall returns |got n want| / |want|, or vacuous when want is empty.
func setRecall(got, want map[string]bool, vacuous float64) float64 {
	if len(want) == 0 {
		return vacuous
	}
	return float64(intersectionSize(got, want)) / float64(len(want))
}

func intersectionSize(a, b map[string]bool) int {
	n := 0
	for k := range a {
		if b[k] {
			n++
		}
	}
	return n
}

// labelSet collects the named string field from a slice of records,
// tolerating both []map[string]any and []any element shapes. Records
// without the field contribute an empty-string member, mirroring set
// semantics over missing labels.
func labelSet(raw any, field string) map[string]bool {
	set := make(map[string]bool)
	for _, rec := range mapList(raw) {
		label, _ := rec[field].(string)
		set[label] = true
	}
	return set
}

func stringSet(raw any) map[string]bool {
	set := make(map[string]bool)
	for _, s := range stringList(raw) {
		set[s] = true
	}
	return set
}

func mapList(raw any) []map[string]any {
	switch v := raw.(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func stringList(raw any) []string {
	switch v := raw.(type) {
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
