package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nomis52/ciwatch/runs"
	"github.com/nomis52/ciwatch/streak"
)

const (
	defaultFailuresLimit = 20
	maxFailuresLimit     = 500
)

// JobsResponse is the JSON response for /api/jobs.
type JobsResponse struct {
	Jobs []streak.JobSummary `json:"jobs"`
}

// JobsHandler reports per-job health: tier, failure streak and success rate.
type JobsHandler struct {
	logger   *slog.Logger
	provider JobsProvider
}

// NewJobsHandler creates a new JobsHandler.
func NewJobsHandler(logger *slog.Logger, provider JobsProvider) *JobsHandler {
	return &JobsHandler{
		logger:   logger,
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *JobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.provider.Jobs(r.Context())
	if err != nil {
		h.logger.Error("failed to summarize jobs", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to summarize jobs: " + err.Error(),
		})
		return
	}
	if jobs == nil {
		jobs = []streak.JobSummary{}
	}
	writeJSON(w, http.StatusOK, JobsResponse{Jobs: jobs})
}

// FailuresResponse is the JSON response for /api/failures.
type FailuresResponse struct {
	Failures []runs.Record `json:"failures"`
}

// FailuresHandler lists the most recent completed failing runs across all
// jobs. The optional limit query parameter defaults to 20.
type FailuresHandler struct {
	logger   *slog.Logger
	provider FailuresProvider
}

// NewFailuresHandler creates a new FailuresHandler.
func NewFailuresHandler(logger *slog.Logger, provider FailuresProvider) *FailuresHandler {
	return &FailuresHandler{
		logger:   logger,
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *FailuresHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := defaultFailuresLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxFailuresLimit {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "limit must be between 1 and " + strconv.Itoa(maxFailuresLimit),
			})
			return
		}
		limit = n
	}

	failures, err := h.provider.Failures(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list failing runs", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to list failing runs: " + err.Error(),
		})
		return
	}
	if failures == nil {
		failures = []runs.Record{}
	}
	writeJSON(w, http.StatusOK, FailuresResponse{Failures: failures})
}
