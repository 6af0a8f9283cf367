package logging

import (
	"log/slog"
)

// LoggerHook derives the logger a pipeline stage runs with. It lets the
// pipeline stay unaware of whether logs are being captured.
type LoggerHook interface {
	// LoggerForStage wraps base into the logger for the named stage.
	LoggerForStage(base *slog.Logger, stage string) *slog.Logger
}

// CapturingLoggerHook creates loggers that record into a LogCollector.
type CapturingLoggerHook struct {
	collector *LogCollector
}

// NewCapturingLoggerHook creates a hook that captures all stage logs.
func NewCapturingLoggerHook(collector *LogCollector) *CapturingLoggerHook {
	return &CapturingLoggerHook{
		collector: collector,
	}
}

// LoggerForStage returns a logger tagged with the stage name whose records
// are also stored in the collector.
func (p *CapturingLoggerHook) LoggerForStage(base *slog.Logger, stage string) *slog.Logger {
	h := NewCapturingHandler(base.Handler(), p.collector, stage)
	return slog.New(h).With("stage", stage)
}

// Collector returns the collector logs are captured into.
func (p *CapturingLoggerHook) Collector() *LogCollector {
	return p.collector
}

// PlainLoggerHook tags loggers with the stage name without capturing.
type PlainLoggerHook struct{}

// LoggerForStage implements LoggerHook.
func (PlainLoggerHook) LoggerForStage(base *slog.Logger, stage string) *slog.Logger {
	return base.With("stage", stage)
}
