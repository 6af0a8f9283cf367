package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrSinkPanic marks a delivery that failed because the sink panicked.
var ErrSinkPanic = errors.New("sink panicked")

// SinkRegistration pairs a sink with a name used in logs and metrics.
type SinkRegistration struct {
	Name string
	Sink Sink
}

// SinkError records a failed delivery to a named sink.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Options configures a Dispatcher.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Dispatcher delivers alerts to every registered sink, one after another.
type Dispatcher struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewDispatcher creates a Dispatcher. Nil sinks are dropped and unnamed
// sinks are called "sink".
func NewDispatcher(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dispatcher")

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	return &Dispatcher{
		logger: logger,
		sinks:  sinks,
	}
}

// Sinks returns the names of the registered sinks in delivery order.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name
	}
	return names
}

// Dispatch delivers a to every sink and returns one *SinkError per failed
// delivery. A failing or panicking sink never prevents delivery to the
// sinks after it.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert) []error {
	var errs []error
	for _, entry := range d.sinks {
		if err := notifySafely(ctx, entry.Sink, a); err != nil {
			d.logger.WarnContext(ctx, "alert delivery failed",
				"sink", entry.Name,
				"job", a.Job,
				"run_id", a.RunID,
				"error", err,
			)
			errs = append(errs, &SinkError{Sink: entry.Name, Err: err})
		}
	}
	return errs
}

func notifySafely(ctx context.Context, sink Sink, a Alert) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrSinkPanic, rec)
		}
	}()
	return sink.Notify(ctx, a)
}
