package cycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nomis52/ciwatch/alert"
	"github.com/nomis52/ciwatch/metrics"
	"github.com/nomis52/ciwatch/notify"
	"github.com/nomis52/ciwatch/runs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var T = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func run(id, job, conclusion string, created time.Time) runs.Record {
	return runs.Record{
		RunID:        id,
		WorkflowName: "CI",
		JobName:      job,
		Status:       runs.StatusCompleted,
		Conclusion:   conclusion,
		CreatedAt:    created,
		Branch:       "main",
		URL:          "https://github.com/containers/urunc/actions/runs/" + id,
	}
}

// recorder is a sink that remembers every alert it was given.
type recorder struct {
	alerts []notify.Alert
	err    error
}

func (r *recorder) Notify(_ context.Context, a notify.Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

type harness struct {
	store    *runs.MemoryStore
	state    *alert.MemoryStore
	console  *recorder
	webhook  *recorder
	registry *metrics.ScrapeRegistry
	eval     *Evaluator
	now      time.Time
}

func newHarness(t *testing.T, prior alert.State, records ...runs.Record) *harness {
	t.Helper()
	h := &harness{
		store:   runs.NewMemoryStore(),
		state:   alert.NewMemoryStore(prior),
		console: &recorder{},
		webhook: &recorder{},
		now:     T,
	}
	require.NoError(t, h.store.Upsert(context.Background(), records...))

	var err error
	h.registry, err = metrics.NewScrapeRegistry()
	require.NoError(t, err)
	m, err := NewMetrics(h.registry)
	require.NoError(t, err)

	dispatcher := notify.NewDispatcher(notify.Options{
		Logger: discard(),
		Sinks: []notify.SinkRegistration{
			{Name: "webhook", Sink: h.webhook},
			{Name: "console", Sink: h.console},
		},
	})
	h.eval, err = New(Options{
		Runs:       h.store,
		State:      h.state,
		Dispatcher: dispatcher,
		Metrics:    m,
		Logger:     discard(),
		Now:        func() time.Time { return h.now },
	})
	require.NoError(t, err)
	return h
}

func (h *harness) scrape(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	h.registry.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	return w.Body.String()
}

func TestNew_RequiresDependencies(t *testing.T) {
	d := notify.NewDispatcher(notify.Options{})
	_, err := New(Options{State: alert.NewMemoryStore(nil), Dispatcher: d})
	assert.Error(t, err)
	_, err = New(Options{Runs: runs.NewMemoryStore(), Dispatcher: d})
	assert.Error(t, err)
	_, err = New(Options{Runs: runs.NewMemoryStore(), State: alert.NewMemoryStore(nil)})
	assert.Error(t, err)

	e, err := New(Options{Runs: runs.NewMemoryStore(), State: alert.NewMemoryStore(nil), Dispatcher: d})
	require.NoError(t, err)
	assert.Equal(t, DefaultWindowSize, e.windowSize)
	assert.Equal(t, DefaultHistoryLimit, e.historyLimit)
}

func TestRun_ScenarioRequiredJobStreak(t *testing.T) {
	h := newHarness(t, alert.State{},
		run("1", "unit-test (amd64)", runs.ConclusionFailure, T),
		run("2", "unit-test (amd64)", runs.ConclusionFailure, T.Add(time.Hour)),
	)
	h.now = T.Add(10 * time.Hour)

	report, err := h.eval.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Alerts, 2)
	a := report.Alerts[0]
	assert.Equal(t, notify.TypeRequiredFailure, a.Type)
	assert.Equal(t, "2", a.RunID)
	assert.Equal(t, "Failing for 10 hours", a.Duration)
	assert.Equal(t, "1", report.Alerts[1].RunID)

	assert.Equal(t, 2, report.Streaks["unit-test (amd64)"].Length)
	assert.Equal(t, alert.State{"unit-test (amd64)": "2"}, h.state.Snapshot())
	assert.Len(t, h.console.alerts, 2)
	assert.Len(t, h.webhook.alerts, 2)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, 2, report.Records)
}

func TestRun_RepeatedCycleIsIdempotent(t *testing.T) {
	h := newHarness(t, nil,
		run("10", "lint", runs.ConclusionFailure, T),
		run("11", "docs", runs.ConclusionSuccess, T),
	)

	first, err := h.eval.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Alerts, 1)

	second, err := h.eval.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Alerts)
	assert.Len(t, h.console.alerts, 1)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRun_ThreeCyclesThreeFailuresThreeAlerts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	total := 0
	for i, id := range []string{"1", "2", "3"} {
		require.NoError(t, h.store.Upsert(ctx, run(id, "lint", runs.ConclusionFailure, T.Add(time.Duration(i)*time.Hour))))
		report, err := h.eval.Run(ctx)
		require.NoError(t, err)
		require.Len(t, report.Alerts, 1)
		assert.Equal(t, id, report.Alerts[0].RunID)
		total += len(report.Alerts)
	}
	assert.Equal(t, 3, total)
	assert.Equal(t, alert.State{"lint": "3"}, h.state.Snapshot())
}

func TestRun_SinkFailureDoesNotStopOthers(t *testing.T) {
	h := newHarness(t, nil, run("1", "lint", runs.ConclusionFailure, T))
	h.webhook.err = errors.Join(notify.ErrTransientDelivery, errors.New("status 500"))

	report, err := h.eval.Run(context.Background())
	require.NoError(t, err, "delivery failures do not fail the cycle")

	require.Len(t, h.console.alerts, 1)
	require.Len(t, report.DeliveryFailures, 1)
	f := report.DeliveryFailures[0]
	assert.Equal(t, "webhook", f.Sink)
	assert.Equal(t, "lint", f.Job)
	assert.Equal(t, "1", f.RunID)
	assert.Contains(t, f.Error, "status 500")

	assert.Equal(t, alert.State{"lint": "1"}, h.state.Snapshot(), "state is not rolled back")
	assert.Contains(t, h.scrape(t), `sink_failures_total{sink="webhook"} 1`)
}

func TestRun_MalformedRecordsExcluded(t *testing.T) {
	bad := run("2", "lint", "", T.Add(time.Hour))
	h := newHarness(t, nil,
		run("1", "lint", runs.ConclusionFailure, T),
		bad,
		runs.Record{RunID: "3", WorkflowName: "CI", Status: runs.StatusCompleted, Conclusion: runs.ConclusionFailure},
	)

	report, err := h.eval.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Records)
	require.Len(t, report.Malformed, 2)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, "1", report.Alerts[0].RunID)
	assert.Equal(t, 1, report.Streaks["lint"].Length, "malformed runs are left out of the history too")
	assert.Contains(t, h.scrape(t), "malformed_records_total 2")
}

func TestRun_InProgressRunsIgnored(t *testing.T) {
	pending := run("2", "lint", "", T.Add(time.Hour))
	pending.Status = runs.StatusInProgress
	h := newHarness(t, nil, run("1", "lint", runs.ConclusionFailure, T), pending)
	h.now = T.Add(24 * time.Hour)

	report, err := h.eval.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Malformed)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, "Failing for 1 day", report.Alerts[0].Duration)
}

func TestRun_WindowSizeBoundsEvaluation(t *testing.T) {
	h := newHarness(t, nil,
		run("1", "lint", runs.ConclusionFailure, T),
		run("2", "e2e", runs.ConclusionFailure, T.Add(time.Hour)),
	)
	h.eval.windowSize = 1

	report, err := h.eval.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, "e2e", report.Alerts[0].Job)
	assert.Equal(t, notify.TypeCIFailure, report.Alerts[0].Type)
}

func TestRun_Metrics(t *testing.T) {
	h := newHarness(t, nil,
		run("1", "lint", runs.ConclusionFailure, T),
		run("2", "e2e", runs.ConclusionFailure, T),
		run("3", "docs", runs.ConclusionSuccess, T),
	)

	_, err := h.eval.Run(context.Background())
	require.NoError(t, err)

	body := h.scrape(t)
	assert.Contains(t, body, `alerts_total{severity="REQUIRED JOB FAILURE"} 1`)
	assert.Contains(t, body, `alerts_total{severity="CI FAILURE"} 1`)
	assert.Contains(t, body, `failure_streak_length{job="lint",tier="REQUIRED"} 1`)
	assert.Contains(t, body, `failure_streak_length{job="e2e",tier="NIGHTLY"} 1`)
	assert.Contains(t, body, `failure_streak_length{job="docs",tier="CI"} 0`)
	assert.Contains(t, body, "cycle_records 3")
}

type brokenState struct {
	loadErr error
	saveErr error
}

func (b brokenState) Load(context.Context) (alert.State, error) { return alert.State{}, b.loadErr }
func (b brokenState) Save(context.Context, alert.State) error   { return b.saveErr }

func TestRun_StateLoadFailureIsFatal(t *testing.T) {
	store := runs.NewMemoryStore()
	console := &recorder{}
	e, err := New(Options{
		Runs:       store,
		State:      brokenState{loadErr: errors.New("disk gone")},
		Dispatcher: notify.NewDispatcher(notify.Options{Sinks: []notify.SinkRegistration{{Name: "console", Sink: console}}}),
		Logger:     discard(),
	})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), run("1", "lint", runs.ConclusionFailure, T)))

	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, alert.ErrStatePersistence)
	assert.Empty(t, console.alerts, "nothing is dispatched without prior state")
}

func TestRun_StateSaveFailureIsFatal(t *testing.T) {
	store := runs.NewMemoryStore()
	console := &recorder{}
	e, err := New(Options{
		Runs:       store,
		State:      brokenState{saveErr: errors.New("read-only file system")},
		Dispatcher: notify.NewDispatcher(notify.Options{Sinks: []notify.SinkRegistration{{Name: "console", Sink: console}}}),
		Logger:     discard(),
	})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), run("1", "lint", runs.ConclusionFailure, T)))

	report, err := e.Run(context.Background())
	require.ErrorIs(t, err, alert.ErrStatePersistence)
	assert.Contains(t, err.Error(), "read-only file system")
	assert.Len(t, report.Alerts, 1, "alerts already delivered are still reported")
	assert.Len(t, console.alerts, 1)
	assert.False(t, report.EndedAt.IsZero())
}

func TestRun_FileStateAcrossEvaluators(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/state.json"
	store := runs.NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, run("1", "lint", runs.ConclusionFailure, T)))

	newEval := func() *Evaluator {
		e, err := New(Options{
			Runs:       store,
			State:      alert.NewFileStore(path, discard()),
			Dispatcher: notify.NewDispatcher(notify.Options{Logger: discard()}),
			Logger:     discard(),
			Now:        func() time.Time { return T },
		})
		require.NoError(t, err)
		return e
	}

	first, err := newEval().Run(ctx)
	require.NoError(t, err)
	assert.Len(t, first.Alerts, 1)

	second, err := newEval().Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Alerts, "a fresh process reads the persisted state")
}
