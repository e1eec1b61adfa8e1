package dto

import (
	"time"

	"github.com/longregen/gepa/internal/domain/models"
)

// RunResponse represents an optimization run in API responses
type RunResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Status        string         `json:"status"`
	Budget        int            `json:"budget"`
	RolloutsUsed  int            `json:"rollouts_used"`
	Iterations    int            `json:"iterations"`
	BestScore     float64        `json:"best_score"`
	Seed          int64          `json:"seed"`
	TrainExamples int            `json:"train_examples"`
	ValExamples   int            `json:"val_examples"`
	Config        map[string]any `json:"config,omitempty"`
	Error         string         `json:"error,omitempty"`
	StartedAt     string         `json:"started_at"`
	CompletedAt   *string        `json:"completed_at,omitempty"`
}

// StagePromptResponse is one stage's instruction inside a candidate response
type StagePromptResponse struct {
	Instruction string `json:"instruction"`
	Version     int    `json:"version"`
}

// CandidateResponse represents a pooled candidate in API responses
type CandidateResponse struct {
	ID        string                         `json:"id"`
	RunID     string                         `json:"run_id"`
	Iteration int                            `json:"iteration"`
	ParentID  string                         `json:"parent_id,omitempty"`
	Stages    map[string]StagePromptResponse `json:"stages"`
	Scores    []float64                      `json:"scores,omitempty"`
	MeanScore float64                        `json:"mean_score"`
	CreatedAt string                         `json:"created_at"`
}

// EvaluationResponse represents a single example evaluation in API responses
type EvaluationResponse struct {
	ID           string  `json:"id"`
	CandidateID  string  `json:"candidate_id"`
	RunID        string  `json:"run_id"`
	ExampleIndex int     `json:"example_index"`
	Phase        string  `json:"phase"`
	Score        float64 `json:"score"`
	Success      bool    `json:"success"`
	LatencyMs    int64   `json:"latency_ms"`
	CreatedAt    string  `json:"created_at"`
}

// FromModel converts a domain model to a response DTO
func (r *RunResponse) FromModel(run *models.OptimizationRun) *RunResponse {
	resp := &RunResponse{
		ID:            run.ID,
		Name:          run.Name,
		Description:   run.Description,
		Status:        run.Status,
		Budget:        run.Budget,
		RolloutsUsed:  run.RolloutsUsed,
		Iterations:    run.Iterations,
		BestScore:     run.BestScore,
		Seed:          run.Seed,
		TrainExamples: run.TrainExamples,
		ValExamples:   run.ValExamples,
		Config:        run.Config,
		Error:         run.Error,
		StartedAt:     formatTime(run.StartedAt),
	}

	if run.CompletedAt != nil {
		completedAt := formatTime(*run.CompletedAt)
		resp.CompletedAt = &completedAt
	}

	return resp
}

// FromRunModelList converts a list of domain models to response DTOs
func FromRunModelList(runs []*models.OptimizationRun) []*RunResponse {
	responses := make([]*RunResponse, len(runs))
	for i, run := range runs {
		responses[i] = (&RunResponse{}).FromModel(run)
	}
	return responses
}

// FromModel converts a domain model to a response DTO
func (r *CandidateResponse) FromModel(rec *models.CandidateRecord) *CandidateResponse {
	stages := make(map[string]StagePromptResponse, len(rec.Stages))
	for name, stage := range rec.Stages {
		stages[name] = StagePromptResponse{
			Instruction: stage.Instruction,
			Version:     stage.Version,
		}
	}

	return &CandidateResponse{
		ID:        rec.ID,
		RunID:     rec.RunID,
		Iteration: rec.Iteration,
		ParentID:  rec.ParentID,
		Stages:    stages,
		Scores:    rec.Scores,
		MeanScore: rec.MeanScore,
		CreatedAt: formatTime(rec.CreatedAt),
	}
}

// FromCandidateModelList converts a list of domain models to response DTOs
func FromCandidateModelList(recs []*models.CandidateRecord) []*CandidateResponse {
	responses := make([]*CandidateResponse, len(recs))
	for i, rec := range recs {
		responses[i] = (&CandidateResponse{}).FromModel(rec)
	}
	return responses
}

// FromModel converts a domain model to a response DTO
func (r *EvaluationResponse) FromModel(rec *models.EvaluationRecord) *EvaluationResponse {
	return &EvaluationResponse{
		ID:           rec.ID,
		CandidateID:  rec.CandidateID,
		RunID:        rec.RunID,
		ExampleIndex: rec.ExampleIndex,
		Phase:        rec.Phase,
		Score:        rec.Score,
		Success:      rec.Success,
		LatencyMs:    rec.LatencyMs,
		CreatedAt:    formatTime(rec.CreatedAt),
	}
}

// FromEvaluationModelList converts a list of domain models to response DTOs
func FromEvaluationModelList(recs []*models.EvaluationRecord) []*EvaluationResponse {
	responses := make([]*EvaluationResponse, len(recs))
	for i, rec := range recs {
		responses[i] = (&EvaluationResponse{}).FromModel(rec)
	}
	return responses
}

// formatTime renders timestamps as UTC RFC3339 regardless of the zone the
// database driver handed back.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
