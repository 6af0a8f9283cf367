package streak

import (
	"time"

	"github.com/nomis52/ciwatch/runs"
	"github.com/nomis52/ciwatch/tier"
)

// successRateWindow is how many recent runs the success rate covers.
const successRateWindow = 10

// JobSummary is the health view of a single job.
type JobSummary struct {
	Job         string    `json:"job"`
	Workflow    string    `json:"workflow"`
	Tier        tier.Tier `json:"tier"`
	Icon        string    `json:"icon"`
	Facts       Facts     `json:"facts"`
	Duration    string    `json:"duration,omitempty"`
	SuccessRate int       `json:"success_rate"`
	Runs        int       `json:"runs"`
	LatestRun   string    `json:"latest_run,omitempty"`
	LatestURL   string    `json:"latest_url,omitempty"`
	Branch      string    `json:"branch,omitempty"`
}

// Summarize builds the health view of one job from its history, most recent
// first. SuccessRate is the percentage of successes among the last ten runs.
func Summarize(history []runs.Record, now time.Time, classifier *tier.Classifier) JobSummary {
	facts := Aggregate(history, now)
	s := JobSummary{
		Facts:    facts,
		Duration: facts.DurationString(),
		Runs:     len(history),
	}
	if len(history) == 0 {
		s.Tier = tier.CI
		s.Icon = tier.CI.Icon()
		return s
	}

	latest := history[0]
	s.Job = latest.Job()
	s.Workflow = latest.WorkflowName
	s.Tier = classifier.Classify(s.Job)
	s.Icon = s.Tier.Icon()
	s.LatestRun = latest.RunID
	s.LatestURL = latest.URL
	s.Branch = latest.Branch

	window := history
	if len(window) > successRateWindow {
		window = window[:successRateWindow]
	}
	successes := 0
	for _, r := range window {
		if r.Conclusion == runs.ConclusionSuccess {
			successes++
		}
	}
	s.SuccessRate = successes * 100 / len(window)
	return s
}

// SummarizeAll groups records by job and summarises each group. Jobs are
// returned in order of their most recent run.
func SummarizeAll(records []runs.Record, now time.Time, classifier *tier.Classifier) []JobSummary {
	sorted := make([]runs.Record, len(records))
	copy(sorted, records)
	runs.SortRecent(sorted)

	groups, names := runs.GroupByJob(sorted)
	out := make([]JobSummary, 0, len(names))
	for _, name := range names {
		out = append(out, Summarize(groups[name], now, classifier))
	}
	return out
}
