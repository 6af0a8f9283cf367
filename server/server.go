// Package server provides the long-running ciwatch service.
//
// The server triggers ingest and evaluate runs on cron schedules and exposes
// a REST API to monitor and control them.
//
// # Endpoints
//
//   - GET /health - Returns "ok" once a configuration is loaded
//   - GET /api/status - Consolidated status endpoint (run status, next run, last cycle)
//   - GET /api/jobs - Per-job health: tier, failure streak, success rate
//   - GET /api/failures?limit= - Most recent failing runs across all jobs
//   - GET /api/stages - Stages a run may name
//   - GET /config - Returns current configuration as YAML, secrets redacted
//   - POST /reload - Reloads configuration from disk
//   - POST /run - Triggers a run
//   - GET /history - Returns history of completed runs
//   - GET /history/logs?id= - Returns the stage logs of one run
//   - POST /history/reload - Re-reads the run history from the state directory
//   - GET /metrics - Prometheus metrics
//
// # Architecture
//
// The ciwatch configuration is swapped atomically on reload, either through
// POST /reload or, with watch_config set, when the file changes on disk.
//
// Run-level dependencies (stores, sinks, GitHub client) are created fresh for
// each run from the current config, so configuration changes take effect on
// the next run without interrupting one in progress.
//
// # Example
//
//	cfg, err := serverconfig.LoadConfig("/etc/ciwatch/server.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nomis52/ciwatch/buildinfo"
	"github.com/nomis52/ciwatch/config"
	"github.com/nomis52/ciwatch/cycle"
	"github.com/nomis52/ciwatch/metrics"
	"github.com/nomis52/ciwatch/pipeline"
	serverconfig "github.com/nomis52/ciwatch/server/config"
	"github.com/nomis52/ciwatch/server/cron"
	"github.com/nomis52/ciwatch/server/handlers"
	"github.com/nomis52/ciwatch/server/runner"
	"github.com/nomis52/ciwatch/server/types"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// serverDeps holds config-derived dependencies that are swapped atomically on reload.
type serverDeps struct {
	config *config.Config
}

// Server is the ciwatch HTTP server and scheduler.
type Server struct {
	cfg        *serverconfig.ServerConfig
	logger     *slog.Logger
	logLevel   *slog.LevelVar
	deps       atomic.Pointer[serverDeps]
	properties types.ServerProperties
	buildOpts  pipeline.BuildOptions

	registry   *metrics.ScrapeRegistry
	history    runner.StateStore
	runner     *runner.Runner
	cron       *cron.CronTriggerManager
	certLoader *CertLoader
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger replaces the default JSON logger on stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithBuildOptions sets the options used to build each run's components.
func WithBuildOptions(opts pipeline.BuildOptions) Option {
	return func(s *Server) error {
		s.buildOpts = opts
		return nil
	}
}

// New creates a new Server from the server configuration.
// It loads the ciwatch configuration and initializes all dependencies.
func New(cfg *serverconfig.ServerConfig, opts ...Option) (*Server, error) {
	logLevel := &slog.LevelVar{}
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	s := &Server{
		cfg:      cfg,
		logLevel: logLevel,
		logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		})),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	hostname, _ := os.Hostname()
	s.properties = types.ServerProperties{
		Build:      buildinfo.Get(),
		StartedAt:  time.Now(),
		Hostname:   hostname,
		ConfigPath: cfg.Config,
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	registry, err := metrics.NewScrapeRegistry(metrics.WithPrefix(s.Config().Monitoring.MetricsPrefix))
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}
	s.registry = registry
	// The prefix is fixed at startup; a reload does not rename metrics.
	cycleMetrics, err := cycle.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	if cfg.StateDir != "" {
		store, err := runner.NewDiskStore(cfg.StateDir, cfg.HistorySize, s.logger)
		if err != nil {
			return nil, err
		}
		s.history = store
	} else {
		s.history = runner.NewMemoryStore(cfg.HistorySize)
	}

	s.runner = runner.New(s.logger, s,
		runner.WithStateStore(s.history),
		runner.WithMetrics(cycleMetrics),
		runner.WithBuildOptions(s.buildOpts),
	)

	specs, err := cfg.TriggerSpecs()
	if err != nil {
		return nil, err
	}
	if len(specs) > 0 {
		manager, err := cron.NewCronTriggerManager(specs, s.runner, s.logger)
		if err != nil {
			return nil, fmt.Errorf("creating cron triggers: %w", err)
		}
		s.cron = manager
	}

	if cfg.Listener.TLS() {
		loader, err := NewCertLoader(cfg.Listener.CertFile, cfg.Listener.KeyFile, s.logger)
		if err != nil {
			return nil, err
		}
		s.certLoader = loader
	}

	return s, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogLevel changes the server's log level at runtime.
func (s *Server) SetLogLevel(level slog.Level) {
	s.logLevel.Set(level)
}

// Reload reads the ciwatch config from disk and swaps it in. The current
// config stays in place when the new one fails to load.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.cfg.Config)
	if err != nil {
		return err
	}

	s.deps.Store(&serverDeps{
		config: &cfg,
	})

	s.logger.Info("configuration loaded", "config_path", s.cfg.Config)
	return nil
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.deps.Load().config
}

// Properties returns metadata about the running server. The repository
// follows the current configuration.
func (s *Server) Properties() types.ServerProperties {
	props := s.properties
	if repo := s.Config().Repository; repo.Owner != "" {
		props.Repository = repo.Owner + "/" + repo.Name
	}
	return props
}

// NextRun returns the next scheduled run time, or nil if no cron is configured.
func (s *Server) NextRun() *time.Time {
	if s.cron == nil {
		return nil
	}
	next := s.cron.NextRun()
	return &next
}

// Status returns the current run status by delegating to the runner.
func (s *Server) Status() runner.RunStatus {
	return s.runner.Status()
}

// LastReport returns the most recent cycle report by delegating to the runner.
func (s *Server) LastReport() (cycle.Report, bool) {
	return s.runner.LastReport()
}

// Runner returns the run executor.
func (s *Server) Runner() *runner.Runner {
	return s.runner
}

// Run starts the HTTP server, the cron triggers and the config watcher, and
// blocks until the context is cancelled. It performs a graceful shutdown
// when the context is done.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.Listener.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certLoader != nil {
		httpServer.TLSConfig = &tls.Config{GetCertificate: s.certLoader.GetCertificate}
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.cron != nil {
		s.logger.Info("starting cron triggers", "next_run", s.cron.NextRun())
		s.cron.Start(gctx)
	}

	if watched := s.watchedFiles(); len(watched) > 0 {
		g.Go(func() error {
			return watchFiles(gctx, s.logger, watched, s.fileChanged)
		})
	}

	g.Go(func() error {
		s.logger.Info("starting server",
			"addr", s.cfg.Listener.Addr,
			"tls", s.certLoader != nil,
			"config_path", s.cfg.Config,
		)
		var err error
		if s.certLoader != nil {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) watchedFiles() []string {
	var files []string
	if s.cfg.WatchConfig {
		files = append(files, s.cfg.Config)
	}
	if s.certLoader != nil {
		files = append(files, s.certLoader.Files()...)
	}
	return files
}

func (s *Server) fileChanged(path string) {
	if s.certLoader != nil {
		for _, f := range s.certLoader.Files() {
			if sameFile(f, path) {
				if err := s.certLoader.Reload(); err != nil {
					s.logger.Error("failed to reload certificate", "error", err)
				}
				return
			}
		}
	}
	if err := s.Reload(); err != nil {
		s.logger.Error("failed to reload configuration", "path", path, "error", err)
	}
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", handlers.NewHealthHandler(s))
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("GET /api/jobs", handlers.NewJobsHandler(s.logger, s.runner))
	mux.Handle("GET /api/failures", handlers.NewFailuresHandler(s.logger, s.runner))
	mux.Handle("GET /api/stages", handlers.NewAvailableStagesHandler(pipeline.AvailableStages()))
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(s.logger, s))
	mux.Handle("POST /run", handlers.NewRunHandler(s.runner))
	mux.Handle("GET /history", handlers.NewHistoryHandler(s.runner))
	mux.Handle("GET /history/logs", handlers.NewHistoryLogsHandler(s.runner))
	if store, ok := s.history.(handlers.ReloadableHistory); ok {
		mux.Handle("POST /history/reload", handlers.NewHistoryReloadHandler(s.logger, store))
	}
	mux.Handle("GET /metrics", s.registry.Handler())

	return mux
}
