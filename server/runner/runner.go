// Package runner manages run execution for the ciwatch server.
//
// The runner handles:
//   - Starting runs of named stages in the background
//   - Preventing concurrent runs
//   - Tracking current run status
//   - Maintaining history of completed runs
//
// Each run builds fresh components from the current configuration, so config
// changes take effect on the next run.
//
// # Example
//
//	r := runner.New(logger, configProvider)
//
//	// Start a run
//	if err := r.Run([]string{"ingest", "evaluate"}); err != nil {
//	    if errors.Is(err, runner.ErrRunInProgress) {
//	        // Handle concurrent run attempt
//	    }
//	}
//
//	// Check status with live stage executions and logs
//	status := r.Status()
//	for _, exec := range status.StageExecutions {
//	    fmt.Printf("%s [%s]: %s\n", exec.Stage, exec.State, exec.Status)
//	}
//
//	// Get history
//	history := r.History() // Most recent first
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nomis52/ciwatch/config"
	"github.com/nomis52/ciwatch/cycle"
	"github.com/nomis52/ciwatch/logging"
	"github.com/nomis52/ciwatch/pipeline"
	"github.com/nomis52/ciwatch/runs"
	"github.com/nomis52/ciwatch/streak"
)

const (
	defaultMaxHistorySize = 100
	// jobsScanLimit bounds the records read to summarize job health.
	jobsScanLimit = 1000
)

// ErrRunInProgress is returned when attempting to start a run while one is already running.
var ErrRunInProgress = errors.New("run already in progress")

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Runner manages run execution.
type Runner struct {
	logger         *slog.Logger
	configProvider ConfigProvider
	store          StateStore
	metrics        *cycle.Metrics
	buildOpts      pipeline.BuildOptions
	now            func() time.Time

	mu           sync.Mutex
	runStatus    RunStatus
	pipeline     *pipeline.Pipeline      // current or last run's pipeline
	statuses     *pipeline.StatusHandler // current run's status lines
	logCollector *logging.LogCollector   // captures logs during execution
	lastReport   *cycle.Report
}

// Option configures a Runner.
type Option func(*Runner)

// WithStateStore configures the runner to use the provided store for persistence.
func WithStateStore(store StateStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithMetrics records cycle metrics on m. The same Metrics must be reused
// across runs since a scrape registry rejects duplicate registrations.
func WithMetrics(m *cycle.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithBuildOptions sets the options used to build each run's components. The
// logger is always the runner's.
func WithBuildOptions(opts pipeline.BuildOptions) Option {
	return func(r *Runner) {
		r.buildOpts = opts
	}
}

// New creates a new Runner.
func New(logger *slog.Logger, provider ConfigProvider, opts ...Option) *Runner {
	r := &Runner{
		logger:         logger,
		configProvider: provider,
		store:          NewMemoryStore(defaultMaxHistorySize),
		now:            time.Now,
		runStatus:      RunStatus{RunSummary: RunSummary{State: RunStateIdle}},
	}

	for _, opt := range opts {
		opt(r)
	}
	r.buildOpts.Logger = logger
	if r.buildOpts.Now != nil {
		r.now = r.buildOpts.Now
	}

	return r
}

// Run starts a run of the named stages in the background. No stages means
// the default stages for the current configuration.
// Returns ErrRunInProgress if a run is already in progress.
func (r *Runner) Run(stages []string) error {
	available := pipeline.AvailableStages()
	for _, s := range stages {
		if !slices.Contains(available, s) {
			return fmt.Errorf("unknown stage %q", s)
		}
	}

	if !r.tryStart(stages) {
		return ErrRunInProgress
	}

	r.logger.Info("starting run", "stages", stages)

	go func() {
		err := r.executeRun(context.Background(), stages)
		r.finish(err)
	}()

	return nil
}

// Status returns the current run status with live stage executions and logs.
// If idle, returns the last completed run status.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.runStatus
	if r.runStatus.State == RunStateRunning && r.pipeline != nil {
		status.StageExecutions = r.buildStageExecutions()
	}
	return status
}

// IsRunning returns true if a run is in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runStatus.State == RunStateRunning
}

// History returns the history of completed runs, most recent first.
func (r *Runner) History() []RunSummary {
	return r.store.History()
}

// Logs returns the stage executions of a completed run.
func (r *Runner) Logs(id string) []StageExecution {
	return r.store.Logs(id)
}

// LastReport returns the report of the most recent evaluate stage.
func (r *Runner) LastReport() (cycle.Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastReport == nil {
		return cycle.Report{}, false
	}
	return *r.lastReport, true
}

// Jobs summarizes the health of every job among the most recent records of
// the configured run store.
func (r *Runner) Jobs(ctx context.Context) ([]streak.JobSummary, error) {
	cfg := r.configProvider.Config()
	if cfg == nil {
		return nil, errors.New("no configuration available")
	}

	store, err := runs.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open run store %s: %w", cfg.Store.Path, err)
	}
	defer store.Close()

	records, err := store.Recent(ctx, jobsScanLimit)
	if err != nil {
		return nil, fmt.Errorf("read recent runs: %w", err)
	}
	valid, _ := runs.Partition(records)
	return streak.SummarizeAll(valid, r.now(), cfg.Classifier()), nil
}

// Failures returns up to limit completed failing runs from the configured
// run store, most recent first.
func (r *Runner) Failures(ctx context.Context, limit int) ([]runs.Record, error) {
	cfg := r.configProvider.Config()
	if cfg == nil {
		return nil, errors.New("no configuration available")
	}

	store, err := runs.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open run store %s: %w", cfg.Store.Path, err)
	}
	defer store.Close()

	failures, err := store.Failures(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read failing runs: %w", err)
	}
	return failures, nil
}

// tryStart attempts to transition from idle to running.
// Returns true if successful, false if already running.
func (r *Runner) tryStart(stages []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runStatus.State == RunStateRunning {
		return false
	}

	now := r.now()
	r.runStatus = RunStatus{RunSummary: RunSummary{
		ID:        uuid.NewString(),
		Stages:    stages,
		State:     RunStateRunning,
		StartedAt: &now,
	}}
	r.pipeline = nil
	r.statuses = nil
	r.logCollector = nil
	return true
}

// finish transitions from running to idle and records the result.
func (r *Runner) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	endTime := r.now()
	duration := endTime.Sub(*r.runStatus.StartedAt)

	r.runStatus.State = RunStateIdle
	r.runStatus.EndedAt = &endTime

	if err != nil {
		r.runStatus.Error = err.Error()
		r.logger.Error("run failed", "id", r.runStatus.ID, "error", err, "duration", duration)
	} else {
		r.runStatus.Error = ""
		r.logger.Info("run completed", "id", r.runStatus.ID, "duration", duration)
	}

	if r.pipeline != nil {
		r.runStatus.StageExecutions = r.buildStageExecutions()
	}

	if err := r.store.Save(r.runStatus.RunSummary, r.runStatus.StageExecutions); err != nil {
		r.logger.Error("failed to save run to store", "error", err)
	}
}

// buildStageExecutions combines stage results, logs, and status lines in
// stage order. Callers hold r.mu.
func (r *Runner) buildStageExecutions() []StageExecution {
	results := r.pipeline.Results()
	logs := r.logCollector.GetAllLogs()
	statuses := r.statuses.All()

	executions := make([]StageExecution, 0, len(results))
	for _, name := range r.pipeline.Stages() {
		result := results[name]
		exec := StageExecution{
			Stage:  name,
			State:  result.State.String(),
			Status: statuses[name],
			Logs:   logs[name],
		}
		if !result.StartTime.IsZero() {
			start := result.StartTime
			exec.StartTime = &start
		}
		if !result.EndTime.IsZero() {
			end := result.EndTime
			exec.EndTime = &end
		}
		if result.Error != nil {
			exec.Error = result.Error.Error()
		}
		executions = append(executions, exec)
	}
	return executions
}

func (r *Runner) recordReport(report cycle.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastReport = &report
	r.runStatus.Cycle = summarizeReport(report)
}

func (r *Runner) executeRun(ctx context.Context, stages []string) error {
	cfg := r.configProvider.Config()
	if cfg == nil {
		return errors.New("no configuration available")
	}

	components, err := pipeline.Build(*cfg, r.buildOpts)
	if err != nil {
		return fmt.Errorf("failed to build components: %w", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			r.logger.Warn("failed to close components", "error", err)
		}
	}()

	stageList, err := components.Stages(stages, r.metrics, r.recordReport)
	if err != nil {
		return fmt.Errorf("failed to create stages: %w", err)
	}

	statuses := pipeline.NewStatusHandler()
	logCollector := logging.NewLogCollector()

	p, err := pipeline.New(stageList,
		pipeline.WithLogger(r.logger),
		pipeline.WithLoggerHook(logging.NewCapturingLoggerHook(logCollector)),
		pipeline.WithStatusHandler(statuses),
		pipeline.WithClock(r.now),
	)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	r.mu.Lock()
	r.pipeline = p
	r.statuses = statuses
	r.logCollector = logCollector
	r.mu.Unlock()

	if err := p.Execute(ctx); err != nil {
		return fmt.Errorf("pipeline execution failed: %w", err)
	}
	return nil
}
