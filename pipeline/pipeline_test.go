package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/nomis52/ciwatch/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStage records that it ran and returns err.
type fakeStage struct {
	name   string
	err    error
	ran    *[]string
	cancel context.CancelFunc
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Execute(ctx context.Context, logger *slog.Logger, status *StatusLine) error {
	*s.ran = append(*s.ran, s.name)
	logger.Info("stage body ran")
	status.Set("working on " + s.name)
	if s.cancel != nil {
		s.cancel()
	}
	return CaptureError(status, func() error { return s.err })
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func TestNew_RejectsDuplicateAndEmptyNames(t *testing.T) {
	var ran []string
	_, err := New([]Stage{&fakeStage{name: "a", ran: &ran}, &fakeStage{name: "a", ran: &ran}})
	assert.ErrorContains(t, err, "duplicate")

	_, err = New([]Stage{&fakeStage{ran: &ran}})
	assert.Error(t, err)
}

func TestPipeline_ResultsAvailableBeforeExecute(t *testing.T) {
	var ran []string
	p, err := New([]Stage{&fakeStage{name: StageIngest, ran: &ran}, &fakeStage{name: StageEvaluate, ran: &ran}})
	require.NoError(t, err)

	assert.Equal(t, []string{StageIngest, StageEvaluate}, p.Stages())
	results := p.Results()
	require.Len(t, results, 2)
	assert.Equal(t, NotStarted, results[StageIngest].State)
	assert.Zero(t, results[StageIngest].Duration())
}

func TestPipeline_ExecuteRunsInOrder(t *testing.T) {
	var ran []string
	clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p, err := New(
		[]Stage{&fakeStage{name: StageIngest, ran: &ran}, &fakeStage{name: StageEvaluate, ran: &ran}},
		WithLogger(testLogger()),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)
	require.NoError(t, err)

	require.NoError(t, p.Execute(context.Background()))
	assert.Equal(t, []string{StageIngest, StageEvaluate}, ran)

	for _, r := range p.Results() {
		assert.Equal(t, Completed, r.State)
		assert.NoError(t, r.Error)
		assert.Equal(t, time.Second, r.Duration())
	}
}

func TestPipeline_ContinuesAfterFailure(t *testing.T) {
	var ran []string
	boom := errors.New("GitHub API returned 502")
	p, err := New([]Stage{
		&fakeStage{name: StageIngest, ran: &ran, err: boom},
		&fakeStage{name: StageEvaluate, ran: &ran},
	}, WithLogger(testLogger()))
	require.NoError(t, err)

	err = p.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "1 stage(s) failed")
	assert.Contains(t, err.Error(), "ingest: GitHub API returned 502")

	var stageErrs StageErrors
	require.ErrorAs(t, err, &stageErrs)
	assert.Len(t, stageErrs, 1)

	assert.Equal(t, []string{StageIngest, StageEvaluate}, ran)
	results := p.Results()
	assert.Equal(t, boom, results[StageIngest].Error)
	assert.Equal(t, Completed, results[StageEvaluate].State)
}

func TestPipeline_CancelledContextSkipsRemainingStages(t *testing.T) {
	var ran []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := New([]Stage{
		&fakeStage{name: StageIngest, ran: &ran, cancel: cancel},
		&fakeStage{name: StageEvaluate, ran: &ran},
	}, WithLogger(testLogger()))
	require.NoError(t, err)

	err = p.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{StageIngest}, ran)
	assert.Equal(t, Skipped, p.Results()[StageEvaluate].State)
}

func TestPipeline_CapturesStageLogsAndStatus(t *testing.T) {
	var ran []string
	collector := logging.NewLogCollector()
	statuses := NewStatusHandler()
	p, err := New([]Stage{
		&fakeStage{name: StageIngest, ran: &ran},
		&fakeStage{name: StageEvaluate, ran: &ran, err: errors.New("state unwritable")},
	},
		WithLogger(testLogger()),
		WithLoggerHook(logging.NewCapturingLoggerHook(collector)),
		WithStatusHandler(statuses),
	)
	require.NoError(t, err)

	_ = p.Execute(context.Background())

	ingestLogs := collector.GetLogs(StageIngest)
	require.NotEmpty(t, ingestLogs)
	assert.Equal(t, "stage body ran", ingestLogs[0].Message)
	assert.Equal(t, StageIngest, ingestLogs[0].Attributes["stage"])
	assert.Equal(t, 1, collector.Count(StageEvaluate, "ERROR"), "the failure is logged against its stage")

	assert.Equal(t, "working on ingest", statuses.Get(StageIngest))
	assert.Equal(t, "❌ state unwritable", statuses.Get(StageEvaluate))
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{NotStarted, "not_started"},
		{Running, "running"},
		{Skipped, "skipped"},
		{Completed, "completed"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
		b, err := tt.state.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, `"`+tt.want+`"`, string(b))
	}
}
