package alert

import (
	"time"

	"github.com/nomis52/ciwatch/notify"
	"github.com/nomis52/ciwatch/runs"
	"github.com/nomis52/ciwatch/streak"
	"github.com/nomis52/ciwatch/tier"
)

// HistoryFunc returns a job's run history, most recent first.
type HistoryFunc func(job string) []runs.Record

// Decision is the outcome of evaluating one window against prior state.
type Decision struct {
	Alerts []notify.Alert
	State  State
	// Streaks holds the failure-streak facts of every alerted job.
	Streaks map[string]streak.Facts
}

// Engine turns a window of runs and the prior notification state into
// alerts and the next state. It performs no I/O.
type Engine struct {
	classifier *tier.Classifier
}

// NewEngine creates an Engine that classifies severity with classifier.
func NewEngine(classifier *tier.Classifier) *Engine {
	if classifier == nil {
		classifier = tier.NewClassifier(tier.DefaultRules()...)
	}
	return &Engine{classifier: classifier}
}

// Severity returns the alert type for a failing job.
func (e *Engine) Severity(job string) string {
	if e.classifier.IsRequired(job) {
		return notify.TypeRequiredFailure
	}
	return notify.TypeCIFailure
}

// Decide walks window in order, which must be most recent first across all
// jobs. A failing run alerts unless it is the run the job was last notified
// for. Once a job's last notified run is reached, the older runs of that job
// were covered by earlier cycles and are skipped. Each alerted job's new
// state is its most recent alerted run.
//
// history supplies the job history used for streak durations. When nil the
// window itself is used. prior is never modified.
func (e *Engine) Decide(window []runs.Record, prior State, history HistoryFunc, now time.Time) Decision {
	if history == nil {
		groups, _ := runs.GroupByJob(window)
		history = func(job string) []runs.Record { return groups[job] }
	}

	d := Decision{
		State:   prior.Clone(),
		Streaks: make(map[string]streak.Facts),
	}
	reached := make(map[string]bool)
	updated := make(map[string]bool)

	for _, r := range window {
		job := r.Job()
		if reached[job] {
			continue
		}
		// A re-run keeps its run id, so the last notified run may no
		// longer be failing. It still marks where earlier cycles stopped.
		if last, ok := prior[job]; ok && last == r.RunID {
			reached[job] = true
			continue
		}
		if !r.IsFailure() {
			continue
		}

		facts, ok := d.Streaks[job]
		if !ok {
			facts = streak.Aggregate(runs.Completed(history(job)), now)
			d.Streaks[job] = facts
		}

		d.Alerts = append(d.Alerts, notify.Alert{
			Type:       e.Severity(job),
			Workflow:   r.WorkflowName,
			Job:        job,
			RunID:      r.RunID,
			Branch:     r.Branch,
			URL:        r.URL,
			Duration:   facts.DurationString(),
			Tier:       e.classifier.Classify(job),
			OccurredAt: now,
		})
		if !updated[job] {
			d.State[job] = r.RunID
			updated[job] = true
		}
	}
	return d
}
