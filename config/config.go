package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nomis52/ciwatch/logging"
	"github.com/nomis52/ciwatch/tier"
)

const (
	// Default ingest settings
	defaultAPIBase       = "https://api.github.com"
	defaultPerPage       = 50
	defaultIngestTimeout = 30 * time.Second

	// Default alerting settings
	defaultWindowSize   = 50
	defaultHistoryLimit = 100

	// Default notification settings
	defaultWebhookTimeout = 10 * time.Second

	// Default storage settings
	defaultStorePath    = "ciwatch.db"
	defaultStatePath    = "last_notified_state.json"
	defaultStateBackend = StateBackendFile

	// Default monitoring settings
	defaultMetricsPrefix = "ciwatch"
	defaultJobName       = "ciwatch"

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"

	redacted = "[redacted]"
)

// Notification state backends.
const (
	StateBackendFile  = "file"
	StateBackendRedis = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Repository    RepositoryConfig    `yaml:"repository"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Tiers         TiersConfig         `yaml:"tiers"`
	Alerting      AlertingConfig      `yaml:"alerting"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Store         StoreConfig         `yaml:"store"`
	State         StateConfig         `yaml:"state"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       logging.Config      `yaml:"logging"`
}

// RepositoryConfig identifies the GitHub repository to watch
type RepositoryConfig struct {
	Owner   string `yaml:"owner"`
	Name    string `yaml:"name"`
	APIBase string `yaml:"api_base"`
	// Token authenticates GitHub API calls. Prefer GITHUB_TOKEN over the file.
	Token string `yaml:"token"`
}

// IngestConfig controls which runs are fetched and stored
type IngestConfig struct {
	// TargetWorkflows limits ingestion to these workflow names. Empty means all.
	TargetWorkflows []string      `yaml:"target_workflows"`
	PerPage         int           `yaml:"per_page"`
	Timeout         time.Duration `yaml:"timeout"`
}

// TiersConfig holds the ordered keyword lists for tier classification
type TiersConfig struct {
	RequiredKeywords     []string `yaml:"required_keywords"`
	NightlyKeywords      []string `yaml:"nightly_keywords"`
	ExperimentalKeywords []string `yaml:"experimental_keywords"`
}

// AlertingConfig bounds an evaluation cycle
type AlertingConfig struct {
	// WindowSize is the number of most recent runs evaluated per cycle.
	WindowSize int `yaml:"window_size"`
	// HistoryLimit is the number of runs per job read to compute streaks.
	HistoryLimit int `yaml:"history_limit"`
}

// NotificationsConfig configures the alert sinks. The console sink is always on.
type NotificationsConfig struct {
	// WebhookEndpoint enables the webhook sink when set.
	WebhookEndpoint string        `yaml:"webhook_endpoint"`
	WebhookTimeout  time.Duration `yaml:"webhook_timeout"`
	WebhookRetries  int           `yaml:"webhook_retries"`
}

// StoreConfig locates the run database
type StoreConfig struct {
	Path string `yaml:"path"`
}

// StateConfig selects where notification state is kept
type StateConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds redis connection settings for the redis state backend
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// MonitoringConfig holds metrics and monitoring settings
type MonitoringConfig struct {
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
}

// envOverrides are the settings that may come from the environment.
type envOverrides struct {
	WebhookEndpoint string `env:"CIWATCH_WEBHOOK_ENDPOINT"`
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`
	GitHubToken     string `env:"GITHUB_TOKEN"`
	StatePath       string `env:"CIWATCH_STATE_PATH"`
	StorePath       string `env:"CIWATCH_DB_PATH"`
	RedisAddr       string `env:"CIWATCH_REDIS_ADDR"`
	RedisPassword   string `env:"CIWATCH_REDIS_PASSWORD"`
	LogLevel        string `env:"CIWATCH_LOG_LEVEL"`
}

// Rules returns the ordered classification rules. Empty lists fall back to
// the built-in keywords.
func (t TiersConfig) Rules() []tier.Rule {
	return tier.RulesFromKeywords(t.RequiredKeywords, t.NightlyKeywords, t.ExperimentalKeywords)
}

// Classifier builds a tier classifier from the configured keywords.
func (c *Config) Classifier() *tier.Classifier {
	return tier.NewClassifier(c.Tiers.Rules()...)
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if (c.Repository.Owner == "") != (c.Repository.Name == "") {
		return fmt.Errorf("repository owner and name must be set together")
	}
	if c.Ingest.PerPage < 1 || c.Ingest.PerPage > 100 {
		return fmt.Errorf("ingest per_page must be between 1 and 100")
	}
	if c.Alerting.WindowSize <= 0 {
		return fmt.Errorf("alerting window_size must be positive")
	}
	if c.Alerting.HistoryLimit <= 0 {
		return fmt.Errorf("alerting history_limit must be positive")
	}
	if c.Notifications.WebhookEndpoint != "" {
		u, err := url.Parse(c.Notifications.WebhookEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("notifications webhook_endpoint must be an http(s) URL")
		}
	}
	if c.Notifications.WebhookTimeout <= 0 {
		return fmt.Errorf("notifications webhook_timeout must be positive")
	}
	if c.Notifications.WebhookRetries < 0 {
		return fmt.Errorf("notifications webhook_retries must not be negative")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch c.State.Backend {
	case StateBackendFile:
		if c.State.Path == "" {
			return fmt.Errorf("state path is required for the file backend")
		}
	case StateBackendRedis:
		if c.State.Redis.Addr == "" {
			return fmt.Errorf("state redis addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("state backend must be %q or %q", StateBackendFile, StateBackendRedis)
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Repository.APIBase == "" {
		c.Repository.APIBase = defaultAPIBase
	}
	if c.Ingest.PerPage == 0 {
		c.Ingest.PerPage = defaultPerPage
	}
	if c.Ingest.Timeout == 0 {
		c.Ingest.Timeout = defaultIngestTimeout
	}
	if c.Alerting.WindowSize == 0 {
		c.Alerting.WindowSize = defaultWindowSize
	}
	if c.Alerting.HistoryLimit == 0 {
		c.Alerting.HistoryLimit = defaultHistoryLimit
	}
	if c.Notifications.WebhookTimeout == 0 {
		c.Notifications.WebhookTimeout = defaultWebhookTimeout
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
	if c.State.Backend == "" {
		c.State.Backend = defaultStateBackend
	}
	if c.State.Path == "" {
		c.State.Path = defaultStatePath
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	// Set logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// ApplyEnv overrides file settings with environment variables. A nil
// environ reads the process environment. SLACK_WEBHOOK_URL is honoured when
// CIWATCH_WEBHOOK_ENDPOINT is unset.
func (c *Config) ApplyEnv(environ map[string]string) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	switch {
	case o.WebhookEndpoint != "":
		c.Notifications.WebhookEndpoint = o.WebhookEndpoint
	case o.SlackWebhookURL != "":
		c.Notifications.WebhookEndpoint = o.SlackWebhookURL
	}
	if o.GitHubToken != "" {
		c.Repository.Token = o.GitHubToken
	}
	if o.StatePath != "" {
		c.State.Path = o.StatePath
	}
	if o.StorePath != "" {
		c.Store.Path = o.StorePath
	}
	if o.RedisAddr != "" {
		c.State.Redis.Addr = o.RedisAddr
	}
	if o.RedisPassword != "" {
		c.State.Redis.Password = o.RedisPassword
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	return nil
}

// Redacted returns a copy safe to expose over the API.
func (c Config) Redacted() Config {
	if c.Repository.Token != "" {
		c.Repository.Token = redacted
	}
	if c.Notifications.WebhookEndpoint != "" {
		c.Notifications.WebhookEndpoint = redacted
	}
	if c.State.Redis.Password != "" {
		c.State.Redis.Password = redacted
	}
	return c
}

// Parse decodes YAML, applies defaults and environment overrides, then validates.
func Parse(data []byte, environ map[string]string) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode YAML config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.ApplyEnv(environ); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data, nil)
}
