package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// HealthHandler answers "ok" once a configuration is loaded, so a load
// balancer keeps traffic away from a server that cannot run a cycle.
type HealthHandler struct {
	configProvider ConfigProvider
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(provider ConfigProvider) *HealthHandler {
	return &HealthHandler{configProvider: provider}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.configProvider.Config() == nil {
		writeText(w, http.StatusServiceUnavailable, "no configuration loaded")
		return
	}
	writeText(w, http.StatusOK, "ok")
}
