package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/longregen/gepa/internal/domain"
	"github.com/longregen/gepa/internal/domain/models"
)

// RunRepository implements ports.RunRepository
type RunRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a new run repository
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

func (r *RunRepository) conn(ctx context.Context) interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
} {
	return GetConn(ctx, r.pool)
}

// CreateRun creates a new optimization run
func (r *RunRepository) CreateRun(ctx context.Context, run *models.OptimizationRun) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	config, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}

	query := `
		INSERT INTO optimization_runs (
			id, name, description, status, budget, rollouts_used, iterations,
			best_score, seed, train_examples, val_examples, config, error_message,
			started_at, completed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)`

	_, err = r.conn(ctx).Exec(ctx, query,
		run.ID,
		run.Name,
		nullString(run.Description),
		run.Status,
		run.Budget,
		run.RolloutsUsed,
		run.Iterations,
		run.BestScore,
		run.Seed,
		run.TrainExamples,
		run.ValExamples,
		config,
		nullString(run.Error),
		run.StartedAt,
		run.CompletedAt,
		run.CreatedAt,
		run.UpdatedAt,
	)

	return err
}

// GetRun retrieves an optimization run by ID
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.OptimizationRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, name, description, status, budget, rollouts_used, iterations,
			best_score, seed, train_examples, val_examples, config, error_message,
			started_at, completed_at, created_at, updated_at
		FROM optimization_runs
		WHERE id = $1`

	return r.scanRun(r.conn(ctx).QueryRow(ctx, query, id))
}

// UpdateRun updates the mutable fields of an existing optimization run
func (r *RunRepository) UpdateRun(ctx context.Context, run *models.OptimizationRun) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	config, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}

	query := `
		UPDATE optimization_runs
		SET status = $1, rollouts_used = $2, iterations = $3, best_score = $4,
			config = $5, error_message = $6, completed_at = $7, updated_at = $8
		WHERE id = $9`

	result, err := r.conn(ctx).Exec(ctx, query,
		run.Status,
		run.RolloutsUsed,
		run.Iterations,
		run.BestScore,
		config,
		nullString(run.Error),
		run.CompletedAt,
		run.UpdatedAt,
		run.ID,
	)

	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}

	return nil
}

// ListRuns retrieves optimization runs, newest first, with optional status
// filtering and pagination
func (r *RunRepository) ListRuns(ctx context.Context, status string, limit, offset int) ([]*models.OptimizationRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200 // Maximum cap
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, name, description, status, budget, rollouts_used, iterations,
			best_score, seed, train_examples, val_examples, config, error_message,
			started_at, completed_at, created_at, updated_at
		FROM optimization_runs`

	args := []any{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRuns(rows)
}

// SaveCandidate inserts a candidate record, updating its scores when the
// candidate was already saved at an earlier iteration
func (r *RunRepository) SaveCandidate(ctx context.Context, rec *models.CandidateRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	stages, err := json.Marshal(rec.Stages)
	if err != nil {
		return fmt.Errorf("marshal candidate stages: %w", err)
	}

	scores, err := json.Marshal(rec.Scores)
	if err != nil {
		return fmt.Errorf("marshal candidate scores: %w", err)
	}

	query := `
		INSERT INTO optimization_candidates (
			id, run_id, iteration, parent_id, stages, scores, mean_score, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (id) DO UPDATE SET
			scores = EXCLUDED.scores,
			mean_score = EXCLUDED.mean_score`

	_, err = r.conn(ctx).Exec(ctx, query,
		rec.ID,
		rec.RunID,
		rec.Iteration,
		nullString(rec.ParentID),
		stages,
		scores,
		rec.MeanScore,
		rec.CreatedAt,
	)

	return err
}

// GetCandidates retrieves all candidates for a run in discovery order
func (r *RunRepository) GetCandidates(ctx context.Context, runID string) ([]*models.CandidateRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, run_id, iteration, parent_id, stages, scores, mean_score, created_at
		FROM optimization_candidates
		WHERE run_id = $1
		ORDER BY iteration ASC, created_at ASC`

	rows, err := r.conn(ctx).Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanCandidates(rows)
}

// GetBestCandidate retrieves the candidate with the highest mean validation
// score for a run
func (r *RunRepository) GetBestCandidate(ctx context.Context, runID string) (*models.CandidateRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, run_id, iteration, parent_id, stages, scores, mean_score, created_at
		FROM optimization_candidates
		WHERE run_id = $1
		ORDER BY mean_score DESC, created_at ASC
		LIMIT 1`

	return r.scanCandidate(r.conn(ctx).QueryRow(ctx, query, runID))
}

// SaveEvaluation saves a single candidate-example evaluation
func (r *RunRepository) SaveEvaluation(ctx context.Context, rec *models.EvaluationRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO optimization_evaluations (
			id, candidate_id, run_id, example_index, phase, score, success, latency_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := r.conn(ctx).Exec(ctx, query,
		rec.ID,
		rec.CandidateID,
		rec.RunID,
		rec.ExampleIndex,
		rec.Phase,
		rec.Score,
		rec.Success,
		rec.LatencyMs,
		rec.CreatedAt,
	)

	return err
}

// GetEvaluations retrieves all evaluations for a candidate ordered by example
func (r *RunRepository) GetEvaluations(ctx context.Context, candidateID string) ([]*models.EvaluationRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, candidate_id, run_id, example_index, phase, score, success, latency_ms, created_at
		FROM optimization_evaluations
		WHERE candidate_id = $1
		ORDER BY example_index ASC, created_at ASC`

	rows, err := r.conn(ctx).Query(ctx, query, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanEvaluations(rows)
}

func (r *RunRepository) scanRun(row pgx.Row) (*models.OptimizationRun, error) {
	var run models.OptimizationRun
	var description sql.NullString
	var bestScore sql.NullFloat64
	var config []byte
	var errorMessage sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.Name,
		&description,
		&run.Status,
		&run.Budget,
		&run.RolloutsUsed,
		&run.Iterations,
		&bestScore,
		&run.Seed,
		&run.TrainExamples,
		&run.ValExamples,
		&config,
		&errorMessage,
		&run.StartedAt,
		&completedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)

	if err != nil {
		if checkNoRows(err) {
			return nil, domain.ErrRunNotFound
		}
		return nil, err
	}

	run.Description = getString(description)
	run.Error = getString(errorMessage)

	if bestScore.Valid {
		run.BestScore = bestScore.Float64
	}

	if len(config) > 0 {
		if err := json.Unmarshal(config, &run.Config); err != nil {
			run.Config = make(map[string]any)
		}
	} else {
		run.Config = make(map[string]any)
	}

	run.CompletedAt = getTimePtr(completedAt)

	return &run, nil
}

func (r *RunRepository) scanRuns(rows pgx.Rows) ([]*models.OptimizationRun, error) {
	runs := make([]*models.OptimizationRun, 0)

	for rows.Next() {
		var run models.OptimizationRun
		var description sql.NullString
		var bestScore sql.NullFloat64
		var config []byte
		var errorMessage sql.NullString
		var completedAt sql.NullTime

		err := rows.Scan(
			&run.ID,
			&run.Name,
			&description,
			&run.Status,
			&run.Budget,
			&run.RolloutsUsed,
			&run.Iterations,
			&bestScore,
			&run.Seed,
			&run.TrainExamples,
			&run.ValExamples,
			&config,
			&errorMessage,
			&run.StartedAt,
			&completedAt,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		run.Description = getString(description)
		run.Error = getString(errorMessage)

		if bestScore.Valid {
			run.BestScore = bestScore.Float64
		}

		if len(config) > 0 {
			if err := json.Unmarshal(config, &run.Config); err != nil {
				run.Config = make(map[string]any)
			}
		} else {
			run.Config = make(map[string]any)
		}

		run.CompletedAt = getTimePtr(completedAt)

		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

func (r *RunRepository) scanCandidate(row pgx.Row) (*models.CandidateRecord, error) {
	var rec models.CandidateRecord
	var parentID sql.NullString
	var stages []byte
	var scores []byte

	err := row.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.Iteration,
		&parentID,
		&stages,
		&scores,
		&rec.MeanScore,
		&rec.CreatedAt,
	)

	if err != nil {
		if checkNoRows(err) {
			return nil, domain.ErrCandidateNotFound
		}
		return nil, err
	}

	rec.ParentID = getString(parentID)

	if len(stages) > 0 {
		if err := json.Unmarshal(stages, &rec.Stages); err != nil {
			rec.Stages = make(map[string]*models.StageConfig)
		}
	} else {
		rec.Stages = make(map[string]*models.StageConfig)
	}

	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &rec.Scores); err != nil {
			rec.Scores = nil
		}
	}

	return &rec, nil
}

func (r *RunRepository) scanCandidates(rows pgx.Rows) ([]*models.CandidateRecord, error) {
	candidates := make([]*models.CandidateRecord, 0)

	for rows.Next() {
		var rec models.CandidateRecord
		var parentID sql.NullString
		var stages []byte
		var scores []byte

		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Iteration,
			&parentID,
			&stages,
			&scores,
			&rec.MeanScore,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		rec.ParentID = getString(parentID)

		if len(stages) > 0 {
			if err := json.Unmarshal(stages, &rec.Stages); err != nil {
				rec.Stages = make(map[string]*models.StageConfig)
			}
		} else {
			rec.Stages = make(map[string]*models.StageConfig)
		}

		if len(scores) > 0 {
			if err := json.Unmarshal(scores, &rec.Scores); err != nil {
				rec.Scores = nil
			}
		}

		candidates = append(candidates, &rec)
	}

	return candidates, rows.Err()
}

func (r *RunRepository) scanEvaluations(rows pgx.Rows) ([]*models.EvaluationRecord, error) {
	evaluations := make([]*models.EvaluationRecord, 0)

	for rows.Next() {
		var rec models.EvaluationRecord

		err := rows.Scan(
			&rec.ID,
			&rec.CandidateID,
			&rec.RunID,
			&rec.ExampleIndex,
			&rec.Phase,
			&rec.Score,
			&rec.Success,
			&rec.LatencyMs,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		evaluations = append(evaluations, &rec)
	}

	return evaluations, rows.Err()
}
