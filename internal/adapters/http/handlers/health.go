package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/longregen/gepa/internal/ports"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler reports liveness plus the state of the optional
// dependencies the server was wired with.
type HealthHandler struct {
	version string
	db      *pgxpool.Pool
	lm      ports.LanguageModel
}

func NewHealthHandler(version string, db *pgxpool.Pool, lm ports.LanguageModel) *HealthHandler {
	return &HealthHandler{
		version: version,
		db:      db,
		lm:      lm,
	}
}

type HealthResponse struct {
	Status   string                   `json:"status"`
	Version  string                   `json:"version,omitempty"`
	Services map[string]ServiceHealth `json:"services,omitempty"`
}

type ServiceHealth struct {
	Status    string  `json:"status"`
	LatencyMs *int64  `json:"latency_ms,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// Handle provides the health check endpoint. Dependencies that were not
// configured are simply absent from the services map.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := HealthResponse{
		Status:   "ok",
		Version:  h.version,
		Services: make(map[string]ServiceHealth),
	}

	if h.db != nil {
		response.Services["database"] = h.checkDatabase(ctx)
	}

	if h.lm != nil {
		response.Services["llm"] = h.checkLanguageModel(ctx)
	}

	statusCode := http.StatusOK
	for name, service := range response.Services {
		if service.Status == "unhealthy" {
			response.Status = "degraded"
			if name == "database" {
				response.Status = "unhealthy"
				statusCode = http.StatusServiceUnavailable
				break
			}
		}
	}

	respondJSON(w, response, statusCode)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ServiceHealth {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	err := h.db.Ping(checkCtx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		return ServiceHealth{
			Status:    "unhealthy",
			LatencyMs: &latency,
			Error:     &errMsg,
		}
	}

	return ServiceHealth{
		Status:    "healthy",
		LatencyMs: &latency,
	}
}

func (h *HealthHandler) checkLanguageModel(ctx context.Context) ServiceHealth {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	_, err := h.lm.CreateCompletion(checkCtx, ports.CompletionRequest{
		Messages: []ports.LLMMessage{
			{Role: "system", Content: "health check"},
			{Role: "user", Content: "ping"},
		},
		MaxTokens: 1,
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		return ServiceHealth{
			Status:    "unhealthy",
			LatencyMs: &latency,
			Error:     &errMsg,
		}
	}

	return ServiceHealth{
		Status:    "healthy",
		LatencyMs: &latency,
	}
}
