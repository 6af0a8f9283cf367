package handlers

import (
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"
)

// ConfigHandler serves the current configuration as YAML with secrets
// redacted.
type ConfigHandler struct {
	configProvider ConfigProvider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(provider ConfigProvider) *ConfigHandler {
	return &ConfigHandler{
		configProvider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.configProvider.Config()
	if cfg == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "no configuration loaded"})
		return
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to encode configuration"})
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ReloadHandler handles requests to reload configuration from disk. A config
// that fails to load or validate leaves the current one in place.
type ReloadHandler struct {
	logger   *slog.Logger
	reloader Reloader
}

// NewReloadHandler creates a new ReloadHandler.
func NewReloadHandler(logger *slog.Logger, reloader Reloader) *ReloadHandler {
	return &ReloadHandler{
		logger:   logger,
		reloader: reloader,
	}
}

// ServeHTTP implements http.Handler.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("failed to reload configuration", "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "failed to reload configuration: " + err.Error(),
		})
		return
	}

	h.logger.Info("configuration reloaded via API")
	w.WriteHeader(http.StatusNoContent)
}
