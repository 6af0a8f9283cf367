package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Stage names of the built-in stages.
const (
	StageIngest   = "ingest"
	StageEvaluate = "evaluate"
)

// AvailableStages returns the names of the built-in stages in run order.
func AvailableStages() []string {
	return []string{StageIngest, StageEvaluate}
}

// Stage is one named step of a run.
type Stage interface {
	Name() string
	Execute(ctx context.Context, logger *slog.Logger, status *StatusLine) error
}

// State represents the execution state of a stage.
type State int

const (
	// NotStarted indicates the stage has not been reached yet.
	NotStarted State = iota
	// Running indicates the stage is executing.
	Running
	// Skipped indicates the stage never ran because the run was cancelled.
	Skipped
	// Completed indicates the stage finished. Check Error for the outcome.
	Completed
)

// String returns a human-readable representation of the State.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Skipped:
		return "skipped"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Result is the outcome of one stage.
type Result struct {
	Stage     string
	State     State
	Error     error
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns how long the stage ran, or zero if it has not finished.
func (r Result) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
