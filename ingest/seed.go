package ingest

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/nomis52/ciwatch/runs"
	"github.com/nomis52/ciwatch/tier"
)

// SeedWorkflows maps each synthetic workflow to its jobs.
var SeedWorkflows = []struct {
	Workflow string
	Jobs     []string
}{
	{Workflow: "CI Integration", Jobs: []string{"unit-test (amd64)", "lint", "unit-test (arm64)"}},
	{Workflow: "Nightly Build", Jobs: []string{"e2e (fedora)", "integration-test"}},
	{Workflow: "Experimental", Jobs: []string{"benchmarks", "experimental-isolation"}},
	{Workflow: "Release", Jobs: []string{"build (amd64)", "build (arm64)"}},
}

// ChronicJob is the synthetic job kept in a long failure streak.
const ChronicJob = "unit-test (amd64)"

const (
	seedSpacing     = 8 * time.Hour
	chronicFailures = 9
)

// Seeder generates synthetic run history for demos and local testing.
type Seeder struct {
	rng     *rand.Rand
	repoURL string
}

// NewSeeder creates a Seeder. The same seed always yields the same runs.
func NewSeeder(seed uint64, repoURL string) *Seeder {
	if repoURL == "" {
		repoURL = "https://github.com/containers/urunc"
	}
	return &Seeder{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		repoURL: strings.TrimRight(repoURL, "/"),
	}
}

// Generate returns perJob runs for every seed job, spaced eight hours apart
// and ending at now. ChronicJob fails for its most recent nine runs; other
// REQUIRED jobs succeed 90% of the time and the rest 70%.
func (s *Seeder) Generate(now time.Time, perJob int) []runs.Record {
	var out []runs.Record
	used := make(map[int64]bool)

	for _, wf := range SeedWorkflows {
		for _, job := range wf.Jobs {
			chronic := job == ChronicJob
			for i := range perJob {
				id := s.runID(used)
				created := now.Add(-time.Duration(i)*seedSpacing - time.Duration(s.rng.IntN(3))*time.Hour)

				conclusion := runs.ConclusionFailure
				if !chronic || i >= chronicFailures {
					prob := 0.7
					if tier.Classify(job) == tier.Required {
						prob = 0.9
					}
					if s.rng.Float64() < prob {
						conclusion = runs.ConclusionSuccess
					}
				}

				branch := "dev"
				if i < 5 {
					branch = "main"
				}

				out = append(out, runs.Record{
					RunID:        strconv.FormatInt(id, 10),
					WorkflowName: wf.Workflow,
					JobName:      job,
					Status:       runs.StatusCompleted,
					Conclusion:   conclusion,
					CreatedAt:    created,
					UpdatedAt:    created,
					CommitSHA:    fmt.Sprintf("sha%d", 1000+s.rng.IntN(9000)),
					Branch:       branch,
					URL:          fmt.Sprintf("%s/actions/runs/%d", s.repoURL, id),
				})
			}
		}
	}
	return out
}

func (s *Seeder) runID(used map[int64]bool) int64 {
	for {
		id := 1000000 + s.rng.Int64N(8000000)
		if !used[id] {
			used[id] = true
			return id
		}
	}
}
