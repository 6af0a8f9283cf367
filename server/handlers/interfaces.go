// Package handlers provides HTTP handlers for the ciwatch server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"context"

	"github.com/nomis52/ciwatch/config"
	"github.com/nomis52/ciwatch/runs"
	"github.com/nomis52/ciwatch/server/runner"
	"github.com/nomis52/ciwatch/streak"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// StageRunner can start runs of named stages.
type StageRunner interface {
	Run(stages []string) error
}

// HistoryProvider provides access to run history.
type HistoryProvider interface {
	History() []runner.RunSummary
	Logs(id string) []runner.StageExecution
}

// JobsProvider summarizes the health of every known job.
type JobsProvider interface {
	Jobs(ctx context.Context) ([]streak.JobSummary, error)
}

// FailuresProvider lists recent failing runs.
type FailuresProvider interface {
	Failures(ctx context.Context, limit int) ([]runs.Record, error)
}
