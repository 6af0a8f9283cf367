package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nomis52/ciwatch/cycle"
	"github.com/nomis52/ciwatch/ingest"
	"github.com/nomis52/ciwatch/runs"
)

// IngestStage fetches recent runs and stores those of the target workflows.
type IngestStage struct {
	Source  ingest.Source
	Store   runs.Store
	Targets []string
	PerPage int

	mu   sync.Mutex
	last ingest.Result
}

// Name implements Stage.
func (s *IngestStage) Name() string { return StageIngest }

// Execute implements Stage.
func (s *IngestStage) Execute(ctx context.Context, logger *slog.Logger, status *StatusLine) error {
	return CaptureError(status, func() error {
		status.Set("fetching workflow runs")
		res, err := ingest.NewCollector(s.Source, s.Store, s.Targets, s.PerPage, logger).Collect(ctx)
		if err != nil {
			return fmt.Errorf("collect runs: %w", err)
		}

		s.mu.Lock()
		s.last = res
		s.mu.Unlock()

		status.Set(fmt.Sprintf("stored %d of %d runs", res.Saved, res.Fetched))
		return nil
	})
}

// Last returns the result of the most recent successful collection.
func (s *IngestStage) Last() ingest.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// EvaluateStage runs one evaluation cycle.
type EvaluateStage struct {
	// Options configure the evaluator. Logger is replaced by the stage logger.
	Options cycle.Options
	// OnReport, if set, receives the report of every cycle that produced one.
	OnReport func(cycle.Report)

	mu   sync.Mutex
	last *cycle.Report
}

// Name implements Stage.
func (s *EvaluateStage) Name() string { return StageEvaluate }

// Execute implements Stage.
func (s *EvaluateStage) Execute(ctx context.Context, logger *slog.Logger, status *StatusLine) error {
	return CaptureError(status, func() error {
		opts := s.Options
		opts.Logger = logger
		evaluator, err := cycle.New(opts)
		if err != nil {
			return fmt.Errorf("create evaluator: %w", err)
		}

		status.Set("evaluating recent runs")
		report, err := evaluator.Run(ctx)

		s.mu.Lock()
		s.last = &report
		s.mu.Unlock()
		if s.OnReport != nil {
			s.OnReport(report)
		}
		if err != nil {
			return err
		}

		status.Set(fmt.Sprintf("%d alert(s) from %d runs", len(report.Alerts), report.Records))
		return nil
	})
}

// Last returns the report of the most recent cycle, if any.
func (s *EvaluateStage) Last() (cycle.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return cycle.Report{}, false
	}
	return *s.last, true
}
