package ports

import (
	"context"

	"github.com/longregen/gepa/internal/domain/models"
)

// RunRepository defines operations for optimization-run persistence. The
// optimization loop holds an optional repository and records through it;
// the CLI and HTTP handlers query through it. A nil repository disables
// recording entirely.
type RunRepository interface {
	CreateRun(ctx context.Context, run *models.OptimizationRun) error
	GetRun(ctx context.Context, id string) (*models.OptimizationRun, error)
	UpdateRun(ctx context.Context, run *models.OptimizationRun) error
	ListRuns(ctx context.Context, status string, limit, offset int) ([]*models.OptimizationRun, error)

	SaveCandidate(ctx context.Context, rec *models.CandidateRecord) error
	GetCandidates(ctx context.Context, runID string) ([]*models.CandidateRecord, error)
	GetBestCandidate(ctx context.Context, runID string) (*models.CandidateRecord, error)

	SaveEvaluation(ctx context.Context, rec *models.EvaluationRecord) error
	GetEvaluations(ctx context.Context, candidateID string) ([]*models.EvaluationRecord, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	// WithTransaction executes a function within a database transaction
	// If the function returns an error, the transaction is rolled back
	// Otherwise, the transaction is committed
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IDGenerator generates unique IDs for entities
type IDGenerator interface {
	// GenerateRunID generates a new optimization run ID (gr_xxx)
	GenerateRunID() string

	// GenerateCandidateID generates a new candidate ID (gc_xxx)
	GenerateCandidateID() string

	// GenerateEvaluationID generates a new evaluation ID (ge_xxx)
	GenerateEvaluationID() string
}
