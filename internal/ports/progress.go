package ports

// Progress event types emitted by the optimization loop.
const (
	EventRunStarted        = "run_started"
	EventCandidateAccepted = "candidate_accepted"
	EventCandidateRejected = "candidate_rejected"
	EventPoolPruned        = "pool_pruned"
	EventRunCompleted      = "run_completed"
	EventRunFailed         = "run_failed"
)

// ProgressEvent is the canonical progress notification emitted once per
// optimization-loop transition. Events are advisory: publishing must never
// block or fail the loop.
type ProgressEvent struct {
	Type           string  `json:"type" msgpack:"type"`
	RunID          string  `json:"run_id" msgpack:"run_id"`
	Iteration      int     `json:"iteration" msgpack:"iteration"`
	Stage          string  `json:"stage,omitempty" msgpack:"stage,omitempty"`
	RolloutsUsed   int     `json:"rollouts_used" msgpack:"rollouts_used"`
	Budget         int     `json:"budget" msgpack:"budget"`
	ParentIndex    int     `json:"parent_index,omitempty" msgpack:"parent_index,omitempty"`
	ParentScore    float64 `json:"parent_score,omitempty" msgpack:"parent_score,omitempty"`
	CandidateScore float64 `json:"candidate_score,omitempty" msgpack:"candidate_score,omitempty"`
	BestScore      float64 `json:"best_score,omitempty" msgpack:"best_score,omitempty"`
	PoolSize       int     `json:"pool_size,omitempty" msgpack:"pool_size,omitempty"`
	Message        string  `json:"message,omitempty" msgpack:"message,omitempty"`
	Timestamp      string  `json:"timestamp" msgpack:"timestamp"`
}

// ProgressPublisher broadcasts progress events to interested subscribers.
type ProgressPublisher interface {
	Publish(event *ProgressEvent)
}
