package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nomis52/ciwatch/runs"
)

// Source lists recent runs from a CI provider.
type Source interface {
	ListRuns(ctx context.Context, perPage int) ([]runs.Record, error)
}

// Result summarises one collection pass.
type Result struct {
	Fetched  int `json:"fetched"`
	Filtered int `json:"filtered"`
	Saved    int `json:"saved"`
}

// Collector fetches runs from a Source and upserts the ones belonging to the
// target workflows.
type Collector struct {
	source  Source
	store   runs.Store
	targets []string
	perPage int
	logger  *slog.Logger
}

// NewCollector creates a Collector. An empty targets list accepts every
// workflow.
func NewCollector(source Source, store runs.Store, targets []string, perPage int, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		source:  source,
		store:   store,
		targets: slices.Clone(targets),
		perPage: perPage,
		logger:  logger,
	}
}

// Wanted reports whether a run of workflow should be stored.
func (c *Collector) Wanted(workflow string) bool {
	return len(c.targets) == 0 || slices.Contains(c.targets, workflow)
}

// Collect performs one fetch-and-store pass.
func (c *Collector) Collect(ctx context.Context) (Result, error) {
	fetched, err := c.source.ListRuns(ctx, c.perPage)
	if err != nil {
		return Result{}, err
	}
	c.logger.Info("fetched workflow runs", "count", len(fetched))

	res := Result{Fetched: len(fetched)}
	keep := make([]runs.Record, 0, len(fetched))
	for _, r := range fetched {
		if !c.Wanted(r.WorkflowName) {
			res.Filtered++
			continue
		}
		if r.RunID == "" {
			c.logger.Warn("skipping run without id", "workflow", r.WorkflowName)
			res.Filtered++
			continue
		}
		keep = append(keep, r)
	}

	if err := c.store.Upsert(ctx, keep...); err != nil {
		return res, fmt.Errorf("store runs: %w", err)
	}
	res.Saved = len(keep)

	for _, r := range keep {
		c.logger.Debug("saved run",
			"run_id", r.RunID,
			"workflow", r.WorkflowName,
			"conclusion", r.Conclusion,
		)
	}
	c.logger.Info("ingest complete", "saved", res.Saved, "filtered", res.Filtered)
	return res, nil
}
