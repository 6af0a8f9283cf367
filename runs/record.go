// Package runs defines the CI run record and the stores that hold them.
package runs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Lifecycle and outcome values used by the GitHub Actions API.
const (
	StatusCompleted  = "completed"
	StatusInProgress = "in_progress"
	StatusQueued     = "queued"

	ConclusionSuccess   = "success"
	ConclusionFailure   = "failure"
	ConclusionCancelled = "cancelled"
	ConclusionSkipped   = "skipped"

	// ConclusionUnknown is reported when there is no run to take a conclusion from.
	ConclusionUnknown = "unknown"
)

// ErrMalformedRecord is returned for records missing a required field.
var ErrMalformedRecord = errors.New("malformed run record")

// Record is one executed job instance.
type Record struct {
	RunID        string    `json:"run_id"`
	WorkflowName string    `json:"workflow_name"`
	JobName      string    `json:"job_name"`
	Status       string    `json:"status"`
	Conclusion   string    `json:"conclusion"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	CommitSHA    string    `json:"commit_sha,omitempty"`
	Branch       string    `json:"branch,omitempty"`
	URL          string    `json:"url,omitempty"`
}

// Job returns the job name, falling back to the workflow name.
func (r Record) Job() string {
	if r.JobName != "" {
		return r.JobName
	}
	return r.WorkflowName
}

// Normalize trims fields and defaults JobName to WorkflowName.
func (r Record) Normalize() Record {
	r.RunID = strings.TrimSpace(r.RunID)
	r.WorkflowName = strings.TrimSpace(r.WorkflowName)
	r.JobName = strings.TrimSpace(r.JobName)
	if r.JobName == "" {
		r.JobName = r.WorkflowName
	}
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	r.Conclusion = strings.ToLower(strings.TrimSpace(r.Conclusion))
	return r
}

// IsCompleted reports whether the run has reached a terminal state.
// Records without a status are treated as completed when they carry a conclusion.
func (r Record) IsCompleted() bool {
	if r.Status == "" {
		return r.Conclusion != ""
	}
	return r.Status == StatusCompleted
}

// IsFailure reports whether the run concluded with a failure.
func (r Record) IsFailure() bool {
	return r.Conclusion == ConclusionFailure
}

// Validate checks the fields the classification and streak logic depend on.
// In-progress runs may lack a conclusion; completed runs may not.
func (r Record) Validate() error {
	var missing []string
	if r.RunID == "" {
		missing = append(missing, "run_id")
	}
	if r.Job() == "" {
		missing = append(missing, "job_name")
	}
	if r.CreatedAt.IsZero() {
		missing = append(missing, "created_at")
	}
	if r.Conclusion == "" && (r.Status == "" || r.Status == StatusCompleted) {
		missing = append(missing, "conclusion")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: run %q missing %s", ErrMalformedRecord, r.RunID, strings.Join(missing, ", "))
	}
	return nil
}

// Malformed pairs a rejected record with the reason it was rejected.
type Malformed struct {
	Record Record `json:"record"`
	Reason string `json:"reason"`
}

// Partition splits records into valid and malformed ones, keeping order.
func Partition(records []Record) ([]Record, []Malformed) {
	valid := make([]Record, 0, len(records))
	var malformed []Malformed
	for _, r := range records {
		if err := r.Validate(); err != nil {
			malformed = append(malformed, Malformed{Record: r, Reason: err.Error()})
			continue
		}
		valid = append(valid, r)
	}
	return valid, malformed
}

// Completed returns the records that have reached a terminal state.
func Completed(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.IsCompleted() {
			out = append(out, r)
		}
	}
	return out
}

// SortRecent sorts records by CreatedAt descending. Ties are broken by
// RunID descending so that ordering is stable across stores.
func SortRecent(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].RunID > records[j].RunID
	})
}

// GroupByJob groups records by job name. Each group keeps the input order,
// and the returned names are in order of first appearance.
func GroupByJob(records []Record) (map[string][]Record, []string) {
	groups := make(map[string][]Record)
	var names []string
	for _, r := range records {
		job := r.Job()
		if _, ok := groups[job]; !ok {
			names = append(names, job)
		}
		groups[job] = append(groups[job], r)
	}
	return groups, names
}
