package handlers

import (
	"errors"
	"net/http"

	"github.com/longregen/gepa/internal/adapters/http/dto"
	"github.com/longregen/gepa/internal/domain"
	"github.com/longregen/gepa/internal/ports"
)

// RunsHandler serves the optimization-run query API
type RunsHandler struct {
	repo ports.RunRepository
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(repo ports.RunRepository) *RunsHandler {
	return &RunsHandler{repo: repo}
}

// List handles GET /api/v1/runs
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	runs, err := h.repo.ListRuns(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, "service_error", "Failed to list optimization runs", http.StatusInternalServerError)
		return
	}

	respondJSON(w, dto.FromRunModelList(runs), http.StatusOK)
}

// Get handles GET /api/v1/runs/{id}
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID, ok := validateURLParam(r, w, "id", "Run ID")
	if !ok {
		return
	}

	run, err := h.repo.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			respondError(w, "not_found", "Optimization run not found", http.StatusNotFound)
		} else {
			respondError(w, "service_error", "Failed to get optimization run", http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, (&dto.RunResponse{}).FromModel(run), http.StatusOK)
}

// GetCandidates handles GET /api/v1/runs/{id}/candidates
func (h *RunsHandler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	runID, ok := validateURLParam(r, w, "id", "Run ID")
	if !ok {
		return
	}

	candidates, err := h.repo.GetCandidates(r.Context(), runID)
	if err != nil {
		respondError(w, "service_error", "Failed to get candidates", http.StatusInternalServerError)
		return
	}

	respondJSON(w, dto.FromCandidateModelList(candidates), http.StatusOK)
}

// GetBestCandidate handles GET /api/v1/runs/{id}/best
func (h *RunsHandler) GetBestCandidate(w http.ResponseWriter, r *http.Request) {
	runID, ok := validateURLParam(r, w, "id", "Run ID")
	if !ok {
		return
	}

	candidate, err := h.repo.GetBestCandidate(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrCandidateNotFound) {
			respondError(w, "not_found", "Best candidate not found", http.StatusNotFound)
		} else {
			respondError(w, "service_error", "Failed to get best candidate", http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, (&dto.CandidateResponse{}).FromModel(candidate), http.StatusOK)
}

// GetEvaluations handles GET /api/v1/candidates/{id}/evaluations
func (h *RunsHandler) GetEvaluations(w http.ResponseWriter, r *http.Request) {
	candidateID, ok := validateURLParam(r, w, "id", "Candidate ID")
	if !ok {
		return
	}

	evals, err := h.repo.GetEvaluations(r.Context(), candidateID)
	if err != nil {
		respondError(w, "service_error", "Failed to get evaluations", http.StatusInternalServerError)
		return
	}

	respondJSON(w, dto.FromEvaluationModelList(evals), http.StatusOK)
}
