package progress

import "github.com/longregen/gepa/internal/ports"

// Fanout forwards every event to each wrapped publisher, letting one loop
// feed the websocket broadcaster and the metrics recorder at once.
type Fanout struct {
	publishers []ports.ProgressPublisher
}

func NewFanout(publishers ...ports.ProgressPublisher) *Fanout {
	return &Fanout{publishers: publishers}
}

func (f *Fanout) Publish(event *ports.ProgressEvent) {
	for _, pub := range f.publishers {
		if pub != nil {
			pub.Publish(event)
		}
	}
}
