package handlers

import (
	"log/slog"
	"net/http"

	"github.com/nomis52/ciwatch/server/runner"
)

// HistoryHandler handles requests for the run history.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	history := h.provider.History()
	if history == nil {
		history = []runner.RunSummary{}
	}
	writeJSON(w, http.StatusOK, history)
}

// HistoryLogsHandler handles requests for logs of a specific run.
type HistoryLogsHandler struct {
	provider HistoryProvider
}

// NewHistoryLogsHandler creates a new HistoryLogsHandler.
func NewHistoryLogsHandler(provider HistoryProvider) *HistoryLogsHandler {
	return &HistoryLogsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryLogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing run id"})
		return
	}

	logs := h.provider.Logs(id)
	if logs == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "run " + id + " not found"})
		return
	}

	writeJSON(w, http.StatusOK, logs)
}

// ReloadableHistory is a history store that can be re-read from disk.
type ReloadableHistory interface {
	Reload() error
}

// HistoryReloadHandler re-reads the run history, picking up runs written by
// another server sharing the state directory.
type HistoryReloadHandler struct {
	logger *slog.Logger
	store  ReloadableHistory
}

// NewHistoryReloadHandler creates a new HistoryReloadHandler.
func NewHistoryReloadHandler(logger *slog.Logger, store ReloadableHistory) *HistoryReloadHandler {
	return &HistoryReloadHandler{
		logger: logger,
		store:  store,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reload(); err != nil {
		h.logger.Error("failed to reload run history", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to reload run history: " + err.Error(),
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
