// Package streak derives failure-streak facts from a job's run history.
package streak

import (
	"fmt"
	"time"

	"github.com/nomis52/ciwatch/runs"
)

const day = 24 * time.Hour

// Facts summarises the leading run of failures in a job history.
type Facts struct {
	// LatestConclusion is the conclusion of the most recent run, or
	// runs.ConclusionUnknown when the history is empty.
	LatestConclusion string `json:"latest_conclusion"`
	// Length counts consecutive failures starting from the most recent run.
	Length int `json:"streak_length"`
	// Start is the creation time of the oldest run in the streak.
	Start time.Time `json:"streak_start,omitempty"`
	// Duration is the time elapsed since Start. Zero when Length is zero.
	Duration time.Duration `json:"streak_duration,omitempty"`
}

// Failing reports whether the job is currently in a failure streak.
func (f Facts) Failing() bool {
	return f.Length > 0
}

// DurationString renders Duration as whole days when at least one day has
// passed, otherwise as whole hours. Empty when there is no streak.
func (f Facts) DurationString() string {
	if f.Length == 0 {
		return ""
	}
	d := f.Duration
	if d < 0 {
		d = 0
	}
	if d >= day {
		return "Failing for " + plural(int(d/day), "day")
	}
	return "Failing for " + plural(int(d/time.Hour), "hour")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Aggregate computes Facts for history, which must be ordered most recent
// first. The streak stops at the first run whose conclusion is not failure.
func Aggregate(history []runs.Record, now time.Time) Facts {
	if len(history) == 0 {
		return Facts{LatestConclusion: runs.ConclusionUnknown}
	}

	facts := Facts{LatestConclusion: history[0].Conclusion}
	for _, r := range history {
		if !r.IsFailure() {
			break
		}
		facts.Length++
		facts.Start = r.CreatedAt
	}

	if facts.Length > 0 {
		facts.Duration = now.Sub(facts.Start)
	}
	return facts
}
