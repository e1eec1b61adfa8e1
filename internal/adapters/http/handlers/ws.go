package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/longregen/gepa/internal/domain"
	"github.com/longregen/gepa/internal/ports"
	"github.com/longregen/gepa/internal/progress"
)

// RunStreamHandler upgrades clients onto the progress feed of one
// optimization run. Frames are msgpack envelopes written by the
// broadcaster; after the subscribe ack the broadcaster is the only
// writer on the connection.
type RunStreamHandler struct {
	upgrader    websocket.Upgrader
	repo        ports.RunRepository
	broadcaster *progress.Broadcaster
}

// NewRunStreamHandler creates a run stream handler. The repository may be
// nil, in which case run IDs are not validated before subscribing.
func NewRunStreamHandler(repo ports.RunRepository, broadcaster *progress.Broadcaster, allowedOrigins []string) *RunStreamHandler {
	allowedOriginsMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedOriginsMap[origin] = true
	}

	return &RunStreamHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return allowedOriginsMap[origin]
			},
		},
		repo:        repo,
		broadcaster: broadcaster,
	}
}

// Handle handles GET /ws/runs/{id}
func (h *RunStreamHandler) Handle(w http.ResponseWriter, r *http.Request) {
	runID, ok := validateURLParam(r, w, "id", "Run ID")
	if !ok {
		return
	}

	if h.repo != nil {
		if _, err := h.repo.GetRun(r.Context(), runID); err != nil {
			if errors.Is(err, domain.ErrRunNotFound) {
				respondError(w, "not_found", "Optimization run not found", http.StatusNotFound)
			} else {
				respondError(w, "internal_error", "Failed to retrieve optimization run", http.StatusInternalServerError)
			}
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "run_id", runID, "error", err)
		return
	}
	defer conn.Close()

	// Ack before subscribing so the broadcaster never writes concurrently
	// with this handler
	ack, err := progress.NewEnvelope(runID, progress.TypeSubscribeAck, map[string]string{"run_id": runID}).Encode()
	if err == nil {
		if err := conn.WriteMessage(websocket.BinaryMessage, ack); err != nil {
			slog.Warn("websocket ack failed", "run_id", runID, "error", err)
			return
		}
	}

	h.broadcaster.Subscribe(runID, conn)
	defer h.broadcaster.Unsubscribe(runID, conn)

	slog.Info("websocket stream established", "run_id", runID)

	// Inbound frames are ignored; the read loop only detects disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "run_id", runID, "error", err)
			}
			return
		}
	}
}
