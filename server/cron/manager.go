package cron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Runnable starts a run of the named stages.
type Runnable interface {
	Run(stages []string) error
}

// CronTriggerManager manages one CronTrigger per schedule.
type CronTriggerManager struct {
	triggers []*CronTrigger
	specs    []TriggerSpec
	logger   *slog.Logger
}

// NewCronTriggerManager creates a manager with a trigger for each spec. The
// specs must already be validated.
func NewCronTriggerManager(specs []TriggerSpec, runnable Runnable, logger *slog.Logger) (*CronTriggerManager, error) {
	triggers := make([]*CronTrigger, 0, len(specs))
	for _, spec := range specs {
		stages := spec.Stages
		trigger, err := NewCronTrigger(spec.CronSpec, func() error {
			return runnable.Run(stages)
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating trigger for '%s:%s': %w",
				strings.Join(spec.Stages, stageListSeparator), spec.CronSpec, err)
		}
		triggers = append(triggers, trigger)
	}

	for i, trigger := range triggers {
		logger.Info("trigger registered",
			"index", i,
			"stages", specs[i].Stages,
			"schedule", specs[i].CronSpec,
			"next_run", trigger.NextRun(),
		)
	}

	return &CronTriggerManager{
		triggers: triggers,
		specs:    specs,
		logger:   logger,
	}, nil
}

// Start launches all triggers. Each trigger runs in its own goroutine.
// Returns immediately. All goroutines exit when ctx is cancelled.
func (m *CronTriggerManager) Start(ctx context.Context) {
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// Specs returns the schedules the manager was built from.
func (m *CronTriggerManager) Specs() []TriggerSpec {
	return m.specs
}

// NextRun returns the earliest scheduled run time across all triggers.
// Returns zero time if there are no triggers.
func (m *CronTriggerManager) NextRun() time.Time {
	if len(m.triggers) == 0 {
		return time.Time{}
	}

	earliest := m.triggers[0].NextRun()
	for _, t := range m.triggers[1:] {
		if next := t.NextRun(); next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}
