// Package cycle runs one evaluation pass of the alerting engine: it loads the
// notification state, reads the recent window of runs, decides which
// failures to alert on, delivers the alerts and writes the state back.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/ciwatch/alert"
	"github.com/nomis52/ciwatch/notify"
	"github.com/nomis52/ciwatch/runs"
	"github.com/nomis52/ciwatch/streak"
	"github.com/nomis52/ciwatch/tier"
)

const (
	DefaultWindowSize   = 50
	DefaultHistoryLimit = 100
)

// Dispatcher delivers an alert to every sink and reports failed deliveries.
type Dispatcher interface {
	Dispatch(ctx context.Context, a notify.Alert) []error
}

// Options configures an Evaluator. Runs, State and Dispatcher are required.
type Options struct {
	Runs       runs.Store
	State      alert.StateStore
	Dispatcher Dispatcher
	Classifier *tier.Classifier
	Metrics    *Metrics
	Logger     *slog.Logger

	// WindowSize is the number of most recent runs evaluated.
	WindowSize int
	// HistoryLimit bounds the per-job history read for streak facts.
	HistoryLimit int
	// Now returns the evaluation time. Defaults to time.Now.
	Now func() time.Time
}

// Evaluator runs evaluation cycles. An Evaluator is not safe for concurrent
// Run calls; callers serialize cycles.
type Evaluator struct {
	runs         runs.Store
	state        alert.StateStore
	dispatcher   Dispatcher
	classifier   *tier.Classifier
	engine       *alert.Engine
	metrics      *Metrics
	logger       *slog.Logger
	windowSize   int
	historyLimit int
	now          func() time.Time
}

// DeliveryFailure records one alert that a sink failed to deliver.
type DeliveryFailure struct {
	Sink  string `json:"sink"`
	Job   string `json:"job"`
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// Report summarizes one cycle.
type Report struct {
	ID               string                  `json:"id"`
	StartedAt        time.Time               `json:"started_at"`
	EndedAt          time.Time               `json:"ended_at"`
	Records          int                     `json:"records"`
	Malformed        []runs.Malformed        `json:"malformed,omitempty"`
	Alerts           []notify.Alert          `json:"alerts"`
	DeliveryFailures []DeliveryFailure       `json:"delivery_failures,omitempty"`
	Streaks          map[string]streak.Facts `json:"streaks"`
	State            alert.State             `json:"state"`
}

// New creates an Evaluator.
func New(opts Options) (*Evaluator, error) {
	if opts.Runs == nil {
		return nil, errors.New("run store is required")
	}
	if opts.State == nil {
		return nil, errors.New("state store is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	e := &Evaluator{
		runs:         opts.Runs,
		state:        opts.State,
		dispatcher:   opts.Dispatcher,
		classifier:   opts.Classifier,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		windowSize:   opts.WindowSize,
		historyLimit: opts.HistoryLimit,
		now:          opts.Now,
	}
	if e.classifier == nil {
		e.classifier = tier.NewClassifier(tier.DefaultRules()...)
	}
	if e.metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, err
		}
		e.metrics = m
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.windowSize <= 0 {
		e.windowSize = DefaultWindowSize
	}
	if e.historyLimit <= 0 {
		e.historyLimit = DefaultHistoryLimit
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.engine = alert.NewEngine(e.classifier)
	return e, nil
}

// Run performs one cycle. Delivery failures are reported but do not fail the
// cycle. A state that cannot be loaded or saved fails it with an error
// matching alert.ErrStatePersistence, in which case the report still lists
// the alerts that were delivered.
func (e *Evaluator) Run(ctx context.Context) (report Report, err error) {
	report = Report{
		ID:        uuid.NewString(),
		StartedAt: e.now(),
	}
	logger := e.logger.With("cycle_id", report.ID)
	defer func() { report.EndedAt = e.now() }()

	prior, err := e.state.Load(ctx)
	if err != nil {
		return report, persistenceError("load notification state", err)
	}

	recent, err := e.runs.Recent(ctx, e.windowSize)
	if err != nil {
		return report, fmt.Errorf("read recent runs: %w", err)
	}
	window, malformed := runs.Partition(recent)
	for _, m := range malformed {
		logger.Warn("skipping malformed run record", "run_id", m.Record.RunID, "reason", m.Reason)
	}
	report.Records = len(window)
	report.Malformed = malformed
	e.metrics.records.Set(float64(len(window)))
	if len(malformed) > 0 {
		e.metrics.malformed.Add(float64(len(malformed)))
	}

	histories, err := e.histories(ctx, window)
	if err != nil {
		return report, err
	}

	now := e.now()
	report.Streaks = make(map[string]streak.Facts, len(histories))
	for job, history := range histories {
		facts := streak.Aggregate(runs.Completed(history), now)
		report.Streaks[job] = facts
		e.metrics.streakLength.With(prometheus.Labels{
			"job":  job,
			"tier": e.classifier.Classify(job).String(),
		}).Set(float64(facts.Length))
	}

	decision := e.engine.Decide(window, prior, func(job string) []runs.Record {
		return histories[job]
	}, now)
	report.Alerts = decision.Alerts
	report.State = decision.State

	for _, a := range decision.Alerts {
		e.metrics.alerts.With(prometheus.Labels{"severity": a.Type}).Inc()
		for _, derr := range e.dispatcher.Dispatch(ctx, a) {
			failure := DeliveryFailure{Job: a.Job, RunID: a.RunID, Error: derr.Error()}
			var sinkErr *notify.SinkError
			if errors.As(derr, &sinkErr) {
				failure.Sink = sinkErr.Sink
				failure.Error = sinkErr.Err.Error()
			}
			e.metrics.sinkFailures.With(prometheus.Labels{"sink": failure.Sink}).Inc()
			report.DeliveryFailures = append(report.DeliveryFailures, failure)
		}
	}

	if err := e.state.Save(ctx, decision.State); err != nil {
		return report, persistenceError("save notification state", err)
	}

	e.metrics.lastCycle.Set(float64(e.now().Unix()))
	logger.Info("cycle finished",
		"records", report.Records,
		"malformed", len(report.Malformed),
		"alerts", len(report.Alerts),
		"delivery_failures", len(report.DeliveryFailures),
	)
	return report, nil
}

// histories reads the valid history of every job in the window.
func (e *Evaluator) histories(ctx context.Context, window []runs.Record) (map[string][]runs.Record, error) {
	_, jobs := runs.GroupByJob(window)
	out := make(map[string][]runs.Record, len(jobs))
	for _, job := range jobs {
		records, err := e.runs.JobHistory(ctx, job, e.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("read history of %q: %w", job, err)
		}
		valid, _ := runs.Partition(records)
		out[job] = valid
	}
	return out, nil
}

func persistenceError(op string, err error) error {
	if errors.Is(err, alert.ErrStatePersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, alert.ErrStatePersistence, err)
}
