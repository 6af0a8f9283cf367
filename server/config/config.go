// Package config loads the ciwatch server configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nomis52/ciwatch/pipeline"
	"github.com/nomis52/ciwatch/server/cron"
)

const (
	defaultListenAddr  = ":8080"
	defaultHistorySize = 100
	defaultLogLevel    = "info"
	defaultConfigPath  = "ciwatch.yaml"
)

// ServerConfig represents the server runtime configuration.
type ServerConfig struct {
	Listener ListenerConfig `yaml:"listener"`
	Cron     []CronTrigger  `yaml:"cron"`
	// The path to the directory used to store the run history. Empty keeps
	// history in memory.
	StateDir string `yaml:"state_dir"`
	// HistorySize is the number of runs kept in the history.
	HistorySize int    `yaml:"history_size"`
	LogLevel    string `yaml:"log_level"`
	// The path to the ciwatch config file, relative to this file's directory.
	Config string `yaml:"config"`
	// WatchConfig reloads the ciwatch config when the file changes.
	WatchConfig bool `yaml:"watch_config"`
}

// ListenerConfig holds HTTP server listener settings.
type ListenerConfig struct {
	// The listen address, defaults to :8080
	Addr string `yaml:"addr"`
	// CertFile and KeyFile enable TLS when both are set.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// TLS reports whether the listener serves HTTPS.
func (l ListenerConfig) TLS() bool {
	return l.CertFile != "" && l.KeyFile != ""
}

// CronTrigger defines a set of stages to run on a schedule.
type CronTrigger struct {
	// The stages to run, in order
	Stages []string `yaml:"stages"`
	// The cron spec to execute the stages at
	Schedule string `yaml:"schedule"`
}

// envOverrides are the settings that may come from the environment.
type envOverrides struct {
	ListenAddr string `env:"CIWATCH_LISTEN_ADDR"`
	// Cron replaces the configured triggers, e.g. "ingest,evaluate:*/15 * * * *".
	Cron     string `env:"CIWATCH_CRON"`
	LogLevel string `env:"CIWATCH_SERVER_LOG_LEVEL"`
}

// LoadConfig reads the YAML config file at the given path and returns a ServerConfig struct.
func LoadConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read server config file %s: %w", path, err)
	}
	cfg, err := Parse(data, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Config != "" && !filepath.IsAbs(cfg.Config) {
		cfg.Config = filepath.Join(filepath.Dir(path), cfg.Config)
	}
	if cfg.StateDir != "" && !filepath.IsAbs(cfg.StateDir) {
		cfg.StateDir = filepath.Join(filepath.Dir(path), cfg.StateDir)
	}
	return cfg, nil
}

// Parse decodes YAML, applies defaults and environment overrides, then
// validates. A nil environ reads the process environment.
func Parse(data []byte, environ map[string]string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode YAML server config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.applyEnv(environ); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *ServerConfig) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = defaultListenAddr
	}
	if c.HistorySize == 0 {
		c.HistorySize = defaultHistorySize
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Config == "" {
		c.Config = defaultConfigPath
	}
}

func (c *ServerConfig) applyEnv(environ map[string]string) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	if o.ListenAddr != "" {
		c.Listener.Addr = o.ListenAddr
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Cron != "" {
		specs, err := cron.ParseTriggerSpecs(o.Cron, pipeline.AvailableStages())
		if err != nil {
			return fmt.Errorf("CIWATCH_CRON: %w", err)
		}
		c.Cron = make([]CronTrigger, 0, len(specs))
		for _, s := range specs {
			c.Cron = append(c.Cron, CronTrigger{Stages: s.Stages, Schedule: s.CronSpec})
		}
	}
	return nil
}

// Validate checks the listener and cron triggers.
func (c *ServerConfig) Validate() error {
	if (c.Listener.CertFile == "") != (c.Listener.KeyFile == "") {
		return errors.New("listener cert_file and key_file must be set together")
	}
	if c.HistorySize < 1 {
		return errors.New("history_size must be positive")
	}
	_, err := c.TriggerSpecs()
	return err
}

// TriggerSpecs returns the validated cron triggers.
func (c *ServerConfig) TriggerSpecs() ([]cron.TriggerSpec, error) {
	specs := make([]cron.TriggerSpec, 0, len(c.Cron))
	for i, t := range c.Cron {
		spec := cron.TriggerSpec{Stages: t.Stages, CronSpec: t.Schedule}
		if err := spec.Validate(pipeline.AvailableStages()); err != nil {
			return nil, fmt.Errorf("cron trigger %d: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
