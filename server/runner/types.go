package runner

import (
	"time"

	"github.com/nomis52/ciwatch/cycle"
	"github.com/nomis52/ciwatch/logging"
)

// RunState represents the current state of a run.
type RunState int

const (
	// RunStateIdle indicates no run is in progress.
	RunStateIdle RunState = iota
	// RunStateRunning indicates a run is in progress.
	RunStateRunning
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *RunState) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"running"`:
		*s = RunStateRunning
	default:
		*s = RunStateIdle
	}
	return nil
}

// CycleSummary is the part of a cycle report kept in run history.
type CycleSummary struct {
	ID               string `json:"id"`
	Records          int    `json:"records"`
	Malformed        int    `json:"malformed"`
	Alerts           int    `json:"alerts"`
	DeliveryFailures int    `json:"delivery_failures"`
}

func summarizeReport(r cycle.Report) *CycleSummary {
	return &CycleSummary{
		ID:               r.ID,
		Records:          r.Records,
		Malformed:        len(r.Malformed),
		Alerts:           len(r.Alerts),
		DeliveryFailures: len(r.DeliveryFailures),
	}
}

// RunSummary describes a run without its stage logs.
type RunSummary struct {
	ID string `json:"id"`
	// Stages are the stage names the run was asked to execute.
	Stages []string `json:"stages"`
	// State is the current state of the run.
	State RunState `json:"state"`
	// StartedAt is when the run started. Nil if no run has occurred.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// EndedAt is when the run ended. Nil if run is in progress or no run has occurred.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Error contains the error message if the run failed. Empty on success.
	Error string `json:"error,omitempty"`
	// Cycle is set when the evaluate stage produced a report.
	Cycle *CycleSummary `json:"cycle,omitempty"`
}

// StageExecution is the outcome of one stage with its captured logs.
type StageExecution struct {
	Stage     string             `json:"stage"`
	State     string             `json:"state"`
	Status    string             `json:"status,omitempty"`
	Error     string             `json:"error,omitempty"`
	StartTime *time.Time         `json:"start_time,omitempty"`
	EndTime   *time.Time         `json:"end_time,omitempty"`
	Logs      []logging.LogEntry `json:"logs,omitempty"`
}

// RunStatus contains information about the current or last run.
type RunStatus struct {
	RunSummary
	StageExecutions []StageExecution `json:"stage_executions,omitempty"`
}
