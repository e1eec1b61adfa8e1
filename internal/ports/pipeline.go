package ports

import (
	"context"

	"github.com/longregen/gepa/internal/domain/models"
)

// Pipeline executes a candidate's fixed stage sequence over one raw input.
// Execution stops at the first failing stage; the traces returned cover
// every stage that was attempted, in order.
type Pipeline interface {
	ExecuteWithTraces(ctx context.Context, candidate *models.Candidate, input map[string]any) (map[string]any, []models.StageTrace, error)

	// StageSequence returns the pipeline's fixed, ordered stage names.
	StageSequence() []string
}
