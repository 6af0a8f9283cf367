// Package cron provides cron-based scheduling for triggering ciwatch runs.
//
// A CronTrigger calls a function according to a cron schedule, and a
// CronTriggerManager owns one trigger per configured schedule, each running
// its own list of stages.
//
// Example usage:
//
//	trigger, err := cron.NewCronTrigger("*/15 * * * *", func() error {
//		return runner.Run([]string{"ingest", "evaluate"})
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trigger.Start(ctx)  // Returns immediately, runs in background
//	<-ctx.Done()        // Wait for shutdown signal
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron expression cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronTrigger executes a function according to a cron schedule.
type CronTrigger struct {
	spec     string
	schedule cron.Schedule
	run      func() error
	logger   *slog.Logger
}

// NewCronTrigger creates a new CronTrigger with the given cron expression.
// The spec follows standard cron format (5 fields: minute, hour, day, month, weekday).
// Returns ErrInvalidCronSpec if the expression cannot be parsed.
func NewCronTrigger(spec string, run func() error, logger *slog.Logger) (*CronTrigger, error) {
	schedule, err := specParser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}
	return newTrigger(spec, schedule, run, logger), nil
}

func newTrigger(spec string, schedule cron.Schedule, run func() error, logger *slog.Logger) *CronTrigger {
	return &CronTrigger{
		spec:     spec,
		schedule: schedule,
		run:      run,
		logger:   logger,
	}
}

// Spec returns the cron expression the trigger was created from.
func (ct *CronTrigger) Spec() string {
	return ct.spec
}

// Start launches a goroutine that triggers runs according to the cron schedule.
// Returns immediately. The goroutine exits when ctx is cancelled.
func (ct *CronTrigger) Start(ctx context.Context) {
	go ct.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (ct *CronTrigger) NextRun() time.Time {
	return ct.schedule.Next(time.Now())
}

func (ct *CronTrigger) loop(ctx context.Context) {
	for {
		nextRun := ct.schedule.Next(time.Now())
		waitDuration := time.Until(nextRun)

		ct.logger.Debug("waiting for next scheduled run",
			"schedule", ct.spec,
			"next_run", nextRun,
			"wait_duration", waitDuration,
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			ct.logger.Info("cron trigger shutting down", "schedule", ct.spec)
			return
		case <-timer.C:
			ct.executeRun()
		}
	}
}

func (ct *CronTrigger) executeRun() {
	ct.logger.Info("starting scheduled run", "schedule", ct.spec)

	if err := ct.run(); err != nil {
		ct.logger.Warn("scheduled run not started", "schedule", ct.spec, "error", err)
	}
}
