package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nomis52/ciwatch/alert"
	"github.com/nomis52/ciwatch/config"
	"github.com/nomis52/ciwatch/cycle"
	"github.com/nomis52/ciwatch/ingest"
	"github.com/nomis52/ciwatch/notify"
	"github.com/nomis52/ciwatch/notify/webhook"
	"github.com/nomis52/ciwatch/runs"
	"github.com/nomis52/ciwatch/tier"
)

// ErrNoRepository is returned when the ingest stage is requested without a
// configured repository.
var ErrNoRepository = errors.New("no repository configured")

// BuildOptions supply what cannot come from the config file.
type BuildOptions struct {
	Logger *slog.Logger
	// Console receives console alerts. Defaults to stdout.
	Console io.Writer
	// Redis overrides the client built from the state redis settings.
	Redis redis.UniversalClient
	// Source overrides the GitHub client built from the repository settings.
	Source ingest.Source
	// Now overrides the evaluation clock.
	Now func() time.Time
}

// Components are the dependencies of a run, built from one configuration.
type Components struct {
	Config     config.Config
	Runs       runs.Store
	State      alert.StateStore
	Source     ingest.Source
	Dispatcher *notify.Dispatcher
	Classifier *tier.Classifier

	logger  *slog.Logger
	now     func() time.Time
	closers []io.Closer
}

// Build opens the run store and state store and creates the sinks described
// by cfg. Close releases them.
func Build(cfg config.Config, opts BuildOptions) (*Components, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Components{
		Config:     cfg,
		Classifier: cfg.Classifier(),
		logger:     logger,
		now:        opts.Now,
	}

	store, err := runs.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open run store %s: %w", cfg.Store.Path, err)
	}
	c.Runs = store
	c.closers = append(c.closers, store)

	switch cfg.State.Backend {
	case config.StateBackendRedis:
		client := opts.Redis
		if client == nil {
			rc := redis.NewClient(&redis.Options{
				Addr:     cfg.State.Redis.Addr,
				Password: cfg.State.Redis.Password,
				DB:       cfg.State.Redis.DB,
			})
			c.closers = append(c.closers, rc)
			client = rc
		}
		c.State = alert.NewRedisStore(client, cfg.State.Redis.Key)
	default:
		c.State = alert.NewFileStore(cfg.State.Path, logger)
	}

	c.Source = opts.Source
	if c.Source == nil && cfg.Repository.Owner != "" {
		gh, err := ingest.NewClient(ingest.ClientConfig{
			APIBase: cfg.Repository.APIBase,
			Owner:   cfg.Repository.Owner,
			Repo:    cfg.Repository.Name,
			Token:   cfg.Repository.Token,
			Timeout: cfg.Ingest.Timeout,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("create GitHub client: %w", err)
		}
		c.Source = gh
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	sinks := []notify.SinkRegistration{
		{Name: "console", Sink: notify.NewConsole(console)},
		{Name: "webhook", Sink: webhook.New(webhook.Config{
			Endpoint:   cfg.Notifications.WebhookEndpoint,
			Timeout:    cfg.Notifications.WebhookTimeout,
			RetryLimit: cfg.Notifications.WebhookRetries,
			Logger:     logger,
		})},
	}
	c.Dispatcher = notify.NewDispatcher(notify.Options{Logger: logger, Sinks: sinks})

	return c, nil
}

// DefaultStages returns the stages run when none are named: ingest when a
// source is available, then evaluate.
func (c *Components) DefaultStages() []string {
	if c.Source == nil {
		return []string{StageEvaluate}
	}
	return []string{StageIngest, StageEvaluate}
}

// Stages builds the named stages in the order given. metrics may be nil.
func (c *Components) Stages(names []string, metrics *cycle.Metrics, onReport func(cycle.Report)) ([]Stage, error) {
	if len(names) == 0 {
		names = c.DefaultStages()
	}

	var stages []Stage
	for i, name := range names {
		if slices.Contains(names[:i], name) {
			return nil, fmt.Errorf("stage %q listed twice", name)
		}
		switch name {
		case StageIngest:
			if c.Source == nil {
				return nil, fmt.Errorf("stage %q: %w", name, ErrNoRepository)
			}
			stages = append(stages, &IngestStage{
				Source:  c.Source,
				Store:   c.Runs,
				Targets: c.Config.Ingest.TargetWorkflows,
				PerPage: c.Config.Ingest.PerPage,
			})
		case StageEvaluate:
			stages = append(stages, &EvaluateStage{
				Options: cycle.Options{
					Runs:         c.Runs,
					State:        c.State,
					Dispatcher:   c.Dispatcher,
					Classifier:   c.Classifier,
					Metrics:      metrics,
					WindowSize:   c.Config.Alerting.WindowSize,
					HistoryLimit: c.Config.Alerting.HistoryLimit,
					Now:          c.now,
				},
				OnReport: onReport,
			})
		default:
			return nil, fmt.Errorf("unknown stage %q", name)
		}
	}
	return stages, nil
}

// Close releases the stores opened by Build.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
