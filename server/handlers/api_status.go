package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/ciwatch/cycle"
	"github.com/nomis52/ciwatch/server/runner"
	"github.com/nomis52/ciwatch/server/types"
)

// NextRunResponse is the JSON response for the next run information.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	Server    types.ServerProperties `json:"server"`
	Uptime    string                 `json:"uptime"`
	Run       runner.RunStatus       `json:"run"` // Includes StageExecutions with Status field
	NextRun   NextRunResponse        `json:"next_run"`
	LastCycle *cycle.Report          `json:"last_cycle,omitempty"`
}

// APIStatusProvider aggregates all the providers needed for the status endpoint.
type APIStatusProvider interface {
	Properties() types.ServerProperties
	Status() runner.RunStatus
	NextRun() *time.Time
	LastReport() (cycle.Report, bool)
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	provider APIStatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(provider APIStatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nextRun := h.provider.NextRun()
	props := h.provider.Properties()
	resp := APIStatusResponse{
		Server: props,
		Uptime: props.Uptime(time.Now()).Truncate(time.Second).String(),
		Run:    h.provider.Status(),
		NextRun: NextRunResponse{
			Scheduled: nextRun != nil,
			NextRun:   nextRun,
		},
	}
	if report, ok := h.provider.LastReport(); ok {
		resp.LastCycle = &report
	}

	writeJSON(w, http.StatusOK, resp)
}
