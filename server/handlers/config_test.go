package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nomis52/ciwatch/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type mockConfigProvider struct {
	config *config.Config
}

func (m *mockConfigProvider) Config() *config.Config {
	return m.config
}

func TestConfigHandler(t *testing.T) {
	var cfg config.Config
	cfg.SetDefaults()
	cfg.Repository.Owner = "containers"
	cfg.Repository.Name = "urunc"
	cfg.Repository.Token = "ghp_secret"
	cfg.Notifications.WebhookEndpoint = "https://hooks.slack.com/services/T/B/X"

	handler := NewConfigHandler(&mockConfigProvider{config: &cfg})

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.NotContains(t, w.Body.String(), "ghp_secret")
	assert.NotContains(t, w.Body.String(), "hooks.slack.com")

	var resp config.Config
	require.NoError(t, yaml.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "containers", resp.Repository.Owner)
	assert.Equal(t, "[redacted]", resp.Repository.Token)
	assert.Equal(t, 50, resp.Alerting.WindowSize)
}

func TestConfigHandler_NoConfig(t *testing.T) {
	handler := NewConfigHandler(&mockConfigProvider{})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/config", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type mockReloader struct {
	err error
}

func (m *mockReloader) Reload() error {
	return m.err
}

func TestReloadHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NewReloadHandler(discardLogger(), &mockReloader{}).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	NewReloadHandler(discardLogger(), &mockReloader{err: errors.New("alerting window_size must be positive")}).
		ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "window_size")
}

func TestHealthHandler(t *testing.T) {
	cfg := config.Config{}
	w := httptest.NewRecorder()
	NewHealthHandler(&mockConfigProvider{config: &cfg}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", w.Body.String())

	w = httptest.NewRecorder()
	NewHealthHandler(&mockConfigProvider{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
