package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nomis52/ciwatch/server/runner"
)

// RunRequest defines the request body for POST /run. An empty body or an
// empty stage list runs the default stages.
type RunRequest struct {
	Stages []string `json:"stages"`
}

// RunHandler handles requests to trigger a run.
type RunHandler struct {
	runner StageRunner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(r StageRunner) *RunHandler {
	return &RunHandler{
		runner: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}

	// Check for duplicate stages
	seen := make(map[string]bool, len(req.Stages))
	for _, stage := range req.Stages {
		if seen[stage] {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("duplicate stage %q in request", stage),
			})
			return
		}
		seen[stage] = true
	}

	err := h.runner.Run(req.Stages)
	if err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Error: err.Error(),
			})
			return
		}
		// Unknown stage or validation error
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
