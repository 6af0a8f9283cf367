package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nomis52/ciwatch/buildinfo"
	"github.com/nomis52/ciwatch/config"
	"github.com/nomis52/ciwatch/cycle"
	"github.com/nomis52/ciwatch/ingest"
	"github.com/nomis52/ciwatch/logging"
	"github.com/nomis52/ciwatch/metrics"
	"github.com/nomis52/ciwatch/pipeline"
	"github.com/nomis52/ciwatch/runs"
)

const (
	defaultSeedRuns = 12
	defaultSeed     = 1
)

func ingestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch recent workflow runs from GitHub into the run store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, opts, []string{pipeline.StageIngest})
		},
	}
}

func evaluateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate stored runs and deliver alerts for new failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, opts, []string{pipeline.StageEvaluate})
		},
	}
}

func runCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Ingest when a repository is configured, then evaluate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, opts, nil)
		},
	}
}

func seedCmd(opts *rootOptions) *cobra.Command {
	var (
		perJob int
		seed   uint64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the run store with synthetic history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if perJob <= 0 {
				return fmt.Errorf("--runs must be positive")
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			store, err := runs.OpenSQLite(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("open run store %s: %w", cfg.Store.Path, err)
			}
			defer store.Close()

			records := ingest.NewSeeder(seed, repositoryURL(cfg)).Generate(time.Now(), perJob)
			if err := store.Upsert(cmd.Context(), records...); err != nil {
				return fmt.Errorf("store seeded runs: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d runs into %s\n", len(records), cfg.Store.Path)
			return nil
		},
	}
	cmd.Flags().IntVar(&perJob, "runs", defaultSeedRuns, "Runs generated per job")
	cmd.Flags().Uint64Var(&seed, "seed", defaultSeed, "Random seed")
	return cmd
}

func validateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.loadConfig(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration validation successful: %s\n", opts.configPath)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			props := buildinfo.Get()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ciwatch %s\n", props.Version)
			fmt.Fprintf(out, "Built: %s\n", props.BuildTime)
			fmt.Fprintf(out, "Commit: %s\n", props.GitCommit)
		},
	}
}

// runStages executes the named stages once against the configured stores.
// Metrics are pushed to the monitoring endpoint when one is configured.
func runStages(cmd *cobra.Command, opts *rootOptions, stages []string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	props := buildinfo.Get()
	logger.Info("ciwatch started",
		"version", props.Version,
		"build_time", props.BuildTime,
		"git_commit", props.GitCommit,
		"config_path", opts.configPath,
	)

	var registry metrics.Registry = metrics.NopRegistry{}
	if cfg.Monitoring.VictoriaMetricsURL != "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		registry = metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.VictoriaMetricsURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: hostname,
		})
	}
	cycleMetrics, err := cycle.NewMetrics(registry)
	if err != nil {
		return err
	}

	components, err := pipeline.Build(cfg, pipeline.BuildOptions{
		Logger:  logger.Logger,
		Console: cmd.OutOrStdout(),
	})
	if err != nil {
		return fmt.Errorf("failed to build components: %w", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("failed to close components", "error", err)
		}
	}()

	stageList, err := components.Stages(stages, cycleMetrics, nil)
	if err != nil {
		return err
	}
	p, err := pipeline.New(stageList, pipeline.WithLogger(logger.Logger))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	runErr := p.Execute(ctx)

	if f, ok := registry.(metrics.Flusher); ok {
		logger.Info("pushing metrics", "url", cfg.Monitoring.VictoriaMetricsURL)
		if err := f.Flush(ctx); err != nil {
			logger.Warn("failed to push metrics", "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	logger.Info("ciwatch completed successfully")
	return nil
}

func repositoryURL(cfg config.Config) string {
	if cfg.Repository.Owner == "" {
		return ""
	}
	return fmt.Sprintf("https://github.com/%s/%s", cfg.Repository.Owner, cfg.Repository.Name)
}
