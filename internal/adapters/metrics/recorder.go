package metrics

import (
	"github.com/longregen/gepa/internal/ports"
)

// ProgressRecorder mirrors optimization progress events into Prometheus
// metrics. It implements ports.ProgressPublisher so it can be fanned out
// alongside the websocket broadcaster without the optimization loop
// knowing about Prometheus.
type ProgressRecorder struct{}

func NewProgressRecorder() *ProgressRecorder {
	return &ProgressRecorder{}
}

func (r *ProgressRecorder) Publish(event *ports.ProgressEvent) {
	if event == nil {
		return
	}

	RolloutsUsed.Set(float64(event.RolloutsUsed))
	PoolSize.Set(float64(event.PoolSize))
	BestScore.Set(event.BestScore)

	switch event.Type {
	case ports.EventCandidateAccepted:
		IterationsTotal.Inc()
		MutationsTotal.WithLabelValues("accepted").Inc()
	case ports.EventCandidateRejected:
		IterationsTotal.Inc()
		MutationsTotal.WithLabelValues("rejected").Inc()
	}
}
