package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nomis52/ciwatch/logging"
)

// Pipeline executes stages in order.
type Pipeline struct {
	stages []Stage
	logger *slog.Logger
	hook   logging.LoggerHook
	status *StatusHandler
	now    func() time.Time

	mu      sync.RWMutex
	results map[string]*Result
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the base logger stages derive their loggers from.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithLoggerHook sets how per-stage loggers are derived.
func WithLoggerHook(hook logging.LoggerHook) Option {
	return func(p *Pipeline) {
		p.hook = hook
	}
}

// WithStatusHandler records stage status messages in handler.
func WithStatusHandler(handler *StatusHandler) Option {
	return func(p *Pipeline) {
		p.status = handler
	}
}

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a pipeline over stages. Stage names must be unique.
func New(stages []Stage, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		stages:  stages,
		logger:  slog.Default(),
		hook:    logging.PlainLoggerHook{},
		now:     time.Now,
		results: make(map[string]*Result, len(stages)),
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, s := range stages {
		name := s.Name()
		if name == "" {
			return nil, fmt.Errorf("stage with empty name")
		}
		if _, dup := p.results[name]; dup {
			return nil, fmt.Errorf("duplicate stage %q", name)
		}
		p.results[name] = &Result{Stage: name, State: NotStarted}
	}
	return p, nil
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// StageErrors holds the failures of one Execute call, one per stage.
type StageErrors []error

func (e StageErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d stage(s) failed:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// Unwrap supports errors.Is and errors.As over every stage error.
func (e StageErrors) Unwrap() []error {
	return e
}

// Execute runs every stage in order, continuing past failures. A non-nil
// error is a StageErrors.
func (p *Pipeline) Execute(ctx context.Context) error {
	var failed StageErrors

	for _, s := range p.stages {
		name := s.Name()
		if ctx.Err() != nil {
			p.update(name, func(r *Result) {
				r.State = Skipped
				r.Error = ctx.Err()
			})
			failed = append(failed, fmt.Errorf("%s: skipped: %w", name, ctx.Err()))
			continue
		}

		logger := p.hook.LoggerForStage(p.logger, name)
		status := NewStatusLine(name, logger, p.status)

		p.update(name, func(r *Result) {
			r.State = Running
			r.StartTime = p.now()
		})
		err := s.Execute(ctx, logger, status)
		p.update(name, func(r *Result) {
			r.State = Completed
			r.Error = err
			r.EndTime = p.now()
		})

		if err != nil {
			logger.Error("stage failed", "error", err)
			failed = append(failed, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(failed) > 0 {
		return failed
	}
	return nil
}

// Results returns a copy of every stage's result.
func (p *Pipeline) Results() map[string]Result {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]Result, len(p.results))
	for name, r := range p.results {
		out[name] = *r
	}
	return out
}

func (p *Pipeline) update(name string, f func(*Result)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f(p.results[name])
}
