// Package pipeline runs the named stages of a ciwatch run in order.
//
// A run is made of stages, typically ingest followed by evaluate. Stages run
// sequentially and a failing stage does not stop the ones after it: a failed
// ingest still lets the evaluation alert on runs already stored. When the
// context is cancelled the remaining stages are skipped.
//
// # Stage Contract
//
//	type Stage interface {
//	    Name() string
//	    Execute(ctx context.Context, logger *slog.Logger, status *StatusLine) error
//	}
//
// Each stage receives a logger derived through a logging.LoggerHook, so the
// server can capture per-stage logs, and a StatusLine for short progress
// messages:
//
//	func (s *EvaluateStage) Execute(ctx context.Context, logger *slog.Logger, status *StatusLine) error {
//	    return CaptureError(status, func() error {
//	        status.Set("evaluating recent runs")
//	        _, err := s.evaluator.Run(ctx)
//	        return err
//	    })
//	}
//
// # Results
//
// Every stage has a Result from the moment the pipeline is built. Results
// move through NotStarted, Running and then Completed or Skipped, and can be
// read while the pipeline executes.
package pipeline
