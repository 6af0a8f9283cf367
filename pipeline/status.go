package pipeline

import (
	"log/slog"
	"maps"
	"sync"
)

// StatusHandler stores the latest status message of each stage.
type StatusHandler struct {
	mu       sync.RWMutex
	statuses map[string]string
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler() *StatusHandler {
	return &StatusHandler{
		statuses: make(map[string]string),
	}
}

// Set updates the status of a stage.
func (sh *StatusHandler) Set(stage, status string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.statuses[stage] = status
}

// Get returns the status of a stage.
func (sh *StatusHandler) Get(stage string) string {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.statuses[stage]
}

// All returns a copy of all stage statuses.
func (sh *StatusHandler) All() map[string]string {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return maps.Clone(sh.statuses)
}

// StatusLine logs a stage's status messages and records them in a handler.
type StatusLine struct {
	logger  *slog.Logger
	handler *StatusHandler
	stage   string
}

// NewStatusLine creates a status line bound to a stage. A nil handler means
// status updates are only logged.
func NewStatusLine(stage string, logger *slog.Logger, handler *StatusHandler) *StatusLine {
	return &StatusLine{
		logger:  logger,
		handler: handler,
		stage:   stage,
	}
}

// Set logs status and records it as the stage's current status.
func (sl *StatusLine) Set(status string) {
	sl.logger.Info(status)
	if sl.handler != nil {
		sl.handler.Set(sl.stage, status)
	}
}

// CaptureError runs f and, if it fails, sets the error as the stage status.
func CaptureError(status *StatusLine, f func() error) error {
	err := f()
	if err != nil && status != nil {
		status.Set("❌ " + err.Error())
	}
	return err
}
