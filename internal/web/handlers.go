package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/matrixci/internal/domain"
	"github.com/example/matrixci/internal/service"
	"github.com/example/matrixci/internal/storage"
)

// Handlers contains HTTP handlers for the status API.
type Handlers struct {
	orchestrator *service.OrchestratorService
	logger       *zap.Logger
}

// NewHandlers creates new API handlers.
func NewHandlers(orchestrator *service.OrchestratorService, logger *zap.Logger) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// ListRuns handles GET /api/runs.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts := storage.ListOptions{}
	if state := r.URL.Query().Get("state"); state != "" {
		parsed, ok := parseRunState(state)
		if !ok {
			http.Error(w, "Unknown state: "+state, http.StatusBadRequest)
			return
		}
		opts.RunStates = []domain.RunState{parsed}
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}

	runs, err := h.orchestrator.ListRuns(ctx, opts)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	response := ListRunsResponse{Runs: make([]RunSummary, 0, len(runs))}
	for _, run := range runs {
		response.Runs = append(response.Runs, convertRun(run))
	}
	writeJSON(w, response)
}

// GetRun handles GET /api/runs/{id}.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if runID == "" || strings.Contains(runID, "/") {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	detail, err := h.orchestrator.GetRunDetail(ctx, runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		h.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}

	response := RunDetailResponse{
		Run:    convertRun(detail.Run),
		Stages: make([]StageView, 0, len(detail.Stages)),
		Jobs:   make([]JobView, 0, len(detail.Jobs)),
	}
	for _, stage := range detail.Stages {
		response.Stages = append(response.Stages, convertStage(stage))
	}
	for _, job := range detail.Jobs {
		response.Jobs = append(response.Jobs, convertJob(job))
	}
	writeJSON(w, response)
}

// GetJobLog handles GET /api/runs/{id}/jobs/{jobID}/log.
func (h *Handlers) GetJobLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Path format: /api/runs/{id}/jobs/{jobID}/log
	path := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	parts := strings.Split(path, "/")
	if len(parts) != 4 || parts[1] != "jobs" || parts[3] != "log" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	runID, jobID := parts[0], parts[2]

	log, err := h.orchestrator.GetJobLog(ctx, runID, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("get job log failed",
			zap.String("run_id", runID),
			zap.String("job_id", jobID),
			zap.Error(err))
		http.Error(w, "Failed to get job log", http.StatusInternalServerError)
		return
	}

	response := JobLogResponse{
		Job:   convertJob(log.Job),
		Steps: make([]StepView, 0, len(log.Steps)),
	}
	for _, step := range log.Steps {
		response.Steps = append(response.Steps, convertStep(step))
	}
	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func parseRunState(s string) (domain.RunState, bool) {
	for _, state := range []domain.RunState{
		domain.RunStatePending,
		domain.RunStateRunning,
		domain.RunStatePassed,
		domain.RunStateFailed,
		domain.RunStateCanceled,
	} {
		if strings.EqualFold(s, state.String()) {
			return state, true
		}
	}
	return domain.RunStateUnknown, false
}
