package handlers

import (
	"net/http"
)

// AvailableStagesResponse is the JSON response for /api/stages.
type AvailableStagesResponse struct {
	Stages []string `json:"stages"`
}

// AvailableStagesHandler lists the stages a run may name.
type AvailableStagesHandler struct {
	stages []string
}

// NewAvailableStagesHandler creates a new AvailableStagesHandler.
func NewAvailableStagesHandler(stages []string) *AvailableStagesHandler {
	return &AvailableStagesHandler{
		stages: stages,
	}
}

// ServeHTTP implements http.Handler.
func (h *AvailableStagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AvailableStagesResponse{Stages: h.stages})
}
