package models

import (
	"time"
)

// OptimizationRun represents one GEPA optimization run over a pipeline.
type OptimizationRun struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Status        string         `json:"status"` // "running", "completed", "failed"
	Budget        int            `json:"budget"`
	RolloutsUsed  int            `json:"rollouts_used"`
	Iterations    int            `json:"iterations"`
	BestScore     float64        `json:"best_score,omitempty"`
	Seed          int64          `json:"seed"`
	TrainExamples int            `json:"train_examples"`
	ValExamples   int            `json:"val_examples"`
	Config        map[string]any `json:"config,omitempty"`
	Error         string         `json:"error,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// OptimizationRun status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

func NewOptimizationRun(id, name string, budget int, seed int64) *OptimizationRun {
	now := time.Now().UTC()
	return &OptimizationRun{
		ID:        id,
		Name:      name,
		Status:    RunStatusRunning,
		Budget:    budget,
		Seed:      seed,
		Config:    make(map[string]any),
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *OptimizationRun) MarkCompleted(bestScore float64) {
	now := time.Now().UTC()
	r.Status = RunStatusCompleted
	r.BestScore = bestScore
	r.CompletedAt = &now
	r.UpdatedAt = now
}

func (r *OptimizationRun) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.Error = errMsg
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// CandidateRecord is the persisted form of one pooled candidate: the stage
// instructions and versions it carried plus its validation scores.
type CandidateRecord struct {
	ID        string                  `json:"id"`
	RunID     string                  `json:"run_id"`
	Iteration int                     `json:"iteration"`
	ParentID  string                  `json:"parent_id,omitempty"`
	Stages    map[string]*StageConfig `json:"stages"`
	Scores    []float64               `json:"scores"`
	MeanScore float64                 `json:"mean_score"`
	CreatedAt time.Time               `json:"created_at"`
}

func NewCandidateRecord(id, runID string, iteration int, parentID string, candidate *Candidate, scores []float64) *CandidateRecord {
	rec := &CandidateRecord{
		ID:        id,
		RunID:     runID,
		Iteration: iteration,
		ParentID:  parentID,
		Stages:    make(map[string]*StageConfig, len(candidate.Stages)),
		Scores:    append([]float64(nil), scores...),
		CreatedAt: time.Now().UTC(),
	}
	for name, stage := range candidate.Stages {
		rec.Stages[name] = stage.Clone()
	}
	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		rec.MeanScore = sum / float64(len(scores))
	}
	return rec
}

// EvaluationRecord represents a single candidate-example evaluation.
type EvaluationRecord struct {
	ID           string    `json:"id"`
	CandidateID  string    `json:"candidate_id"`
	RunID        string    `json:"run_id"`
	ExampleIndex int       `json:"example_index"`
	Phase        string    `json:"phase"` // "seed", "minibatch", "validation"
	Score        float64   `json:"score"`
	Success      bool      `json:"success"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewEvaluationRecord(id, candidateID, runID string, exampleIndex int, phase string, score float64, success bool, latencyMs int64) *EvaluationRecord {
	return &EvaluationRecord{
		ID:           id,
		CandidateID:  candidateID,
		RunID:        runID,
		ExampleIndex: exampleIndex,
		Phase:        phase,
		Score:        score,
		Success:      success,
		LatencyMs:    latencyMs,
		CreatedAt:    time.Now().UTC(),
	}
}
