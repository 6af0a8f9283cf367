// Package notify delivers regression alerts to notification sinks.
//
// A Dispatcher fans each Alert out to every registered Sink in order. A sink
// that fails is logged and skipped; the remaining sinks still receive the
// alert.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nomis52/ciwatch/tier"
)

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=notify -destination=mock_sink_test.go github.com/nomis52/ciwatch/notify Sink

// Alert types.
const (
	TypeRequiredFailure = "REQUIRED JOB FAILURE"
	TypeCIFailure       = "CI FAILURE"
)

// ErrTransientDelivery marks a delivery that failed but may succeed on a
// later attempt: the endpoint was unreachable, timed out or answered non-2xx.
var ErrTransientDelivery = errors.New("transient delivery failure")

// Alert is a single regression notification for one failing run.
type Alert struct {
	Type       string    `json:"type"`
	Workflow   string    `json:"workflow"`
	Job        string    `json:"job"`
	RunID      string    `json:"run_id"`
	Branch     string    `json:"branch"`
	URL        string    `json:"url"`
	Duration   string    `json:"duration,omitempty"`
	Tier       tier.Tier `json:"tier"`
	OccurredAt time.Time `json:"occurred_at"`
}

// IsSevere reports whether the alert type names a required or hard failure.
func (a Alert) IsSevere() bool {
	return strings.Contains(a.Type, "REQUIRED") || strings.Contains(a.Type, "HARD")
}

// Sink is a destination capable of receiving alerts.
type Sink interface {
	Notify(ctx context.Context, a Alert) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, a Alert) error

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, a Alert) error {
	if f == nil {
		return nil
	}
	return f(ctx, a)
}
