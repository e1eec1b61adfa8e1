package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/longregen/gepa/internal/ports"
)

const writeTimeout = 10 * time.Second

// Broadcaster pushes progress envelopes to websocket subscribers, keyed by
// run ID. It implements ports.ProgressPublisher, so the optimization loop
// can feed it directly; publishing to a run with no subscribers is a no-op.
type Broadcaster struct {
	connections map[string]map[*websocket.Conn]struct{}
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		connections: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (b *Broadcaster) Subscribe(runID string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connections[runID] == nil {
		b.connections[runID] = make(map[*websocket.Conn]struct{})
	}
	b.connections[runID][conn] = struct{}{}
	slog.Debug("websocket subscribed", "run_id", runID, "total", len(b.connections[runID]))
}

func (b *Broadcaster) Unsubscribe(runID string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conns, ok := b.connections[runID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(b.connections, runID)
		}
		slog.Debug("websocket unsubscribed", "run_id", runID, "remaining", len(conns))
	}
}

func (b *Broadcaster) SubscriberCount(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.connections[runID])
}

// Publish encodes the event into an envelope and broadcasts it to the
// run's subscribers.
func (b *Broadcaster) Publish(event *ports.ProgressEvent) {
	if event == nil {
		return
	}
	data, err := NewEnvelope(event.RunID, TypeProgressEvent, event).Encode()
	if err != nil {
		slog.Warn("failed to encode progress event", "run_id", event.RunID, "error", err)
		return
	}
	b.BroadcastBinary(event.RunID, data)
}

// BroadcastBinary writes data to every subscriber of the run. Connections
// that fail the write are dropped.
func (b *Broadcaster) BroadcastBinary(runID string, data []byte) {
	b.mu.RLock()
	conns, ok := b.connections[runID]
	if !ok || len(conns) == 0 {
		b.mu.RUnlock()
		return
	}
	targets := make([]*websocket.Conn, 0, len(conns))
	for conn := range conns {
		targets = append(targets, conn)
	}
	b.mu.RUnlock()

	for _, conn := range targets {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			slog.Warn("failed to broadcast to websocket connection", "run_id", runID, "error", err)
			b.Unsubscribe(runID, conn)
		}
	}
}

// BroadcastError pushes an error frame to the run's subscribers.
func (b *Broadcaster) BroadcastError(runID, code, message string) {
	body := map[string]string{"code": code, "message": message}
	data, err := NewEnvelope(runID, TypeError, body).Encode()
	if err != nil {
		slog.Warn("failed to encode error frame", "run_id", runID, "error", err)
		return
	}
	b.BroadcastBinary(runID, data)
}
