package ports

import (
	"context"

	"github.com/longregen/gepa/internal/domain/models"
)

// FeedbackGenerator turns a pipeline run's output and traces into a
// human-readable critique of the stage under optimization. The optimizer
// treats a returned error as empty feedback; a generator must never be
// able to fail an optimization run.
type FeedbackGenerator interface {
	GenerateFeedback(ctx context.Context, output, expected map[string]any, traces []models.StageTrace, stageIndex int) (string, error)
}
