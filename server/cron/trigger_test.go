package cron

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRunnable is a test implementation of Runnable.
type mockRunnable struct {
	runCount atomic.Int32
	runErr   error

	mu     sync.Mutex
	stages [][]string
}

func (m *mockRunnable) Run(stages []string) error {
	m.runCount.Add(1)
	m.mu.Lock()
	m.stages = append(m.stages, stages)
	m.mu.Unlock()
	return m.runErr
}

func (m *mockRunnable) calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.stages...)
}

// soonSchedule fires a few milliseconds after every call to Next.
type soonSchedule struct{}

func (soonSchedule) Next(t time.Time) time.Time {
	return t.Add(5 * time.Millisecond)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestNewCronTrigger(t *testing.T) {
	runnable := &mockRunnable{}

	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "valid spec - daily at 2am", spec: "0 2 * * *"},
		{name: "valid spec - every 15 minutes", spec: "*/15 * * * *"},
		{name: "valid spec - weekdays", spec: "0 9 * * 1-5"},
		{name: "invalid spec - empty", spec: "", wantErr: true},
		{name: "invalid spec - wrong format", spec: "not a cron spec", wantErr: true},
		{name: "invalid spec - too few fields", spec: "0 2 *", wantErr: true},
		{name: "invalid spec - seconds field", spec: "0 0 2 * * *", wantErr: true},
		{name: "invalid spec - invalid value", spec: "60 2 * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callback := func() error {
				return runnable.Run([]string{"ingest", "evaluate"})
			}
			trigger, err := NewCronTrigger(tt.spec, callback, testLogger())

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCronSpec)
				assert.Nil(t, trigger)
			} else {
				require.NoError(t, err)
				require.NotNil(t, trigger)
				assert.Equal(t, tt.spec, trigger.Spec())
			}
		})
	}
}

func TestCronTrigger_NextRun(t *testing.T) {
	trigger, err := NewCronTrigger("0 2 * * *", func() error { return nil }, testLogger())
	require.NoError(t, err)

	nextRun := trigger.NextRun()
	assert.True(t, nextRun.After(time.Now()), "next run should be in the future")
	assert.Equal(t, 2, nextRun.Hour(), "next run should be at 2am")
	assert.Equal(t, 0, nextRun.Minute(), "next run should be at minute 0")
}

func TestCronTrigger_Start_CancellationStopsLoop(t *testing.T) {
	runnable := &mockRunnable{}

	trigger, err := NewCronTrigger("0 2 1 1 *", func() error {
		return runnable.Run([]string{"evaluate"})
	}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	trigger.Start(ctx)

	time.Sleep(10 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(0), runnable.runCount.Load())
}

func TestCronTrigger_FiresOnSchedule(t *testing.T) {
	runnable := &mockRunnable{}
	trigger := newTrigger("test", soonSchedule{}, func() error {
		return runnable.Run([]string{"evaluate"})
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trigger.Start(ctx)

	require.Eventually(t, func() bool {
		return runnable.runCount.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"evaluate"}, runnable.calls()[0])
}

func TestCronTrigger_RunErrorKeepsLooping(t *testing.T) {
	runnable := &mockRunnable{runErr: errors.New("run already in progress")}
	trigger := newTrigger("test", soonSchedule{}, func() error {
		return runnable.Run([]string{"ingest"})
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trigger.Start(ctx)

	require.Eventually(t, func() bool {
		return runnable.runCount.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}
