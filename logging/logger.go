// Package logging provides structured logging for ciwatch.
// Loggers are slog based and configured by level, format and output. Pipeline
// stages can additionally capture their records through a LoggerHook so the
// server can show per-stage logs for each run.
//
// Example usage:
//
//	logger, err := logging.New(logging.Config{
//		Level:  "info",
//		Format: "json",
//	})
//	defer logger.Close()
//	logger.Info("cycle finished", "alerts", 2, "records", 50)
//	logger.Warn("sink delivery failed", "sink", "webhook", "error", err)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Named outputs. Any other output is a file path, opened for append.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Config holds the configuration for the logger.
type Config struct {
	// Level sets the minimum log level: debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
	// Output is stdout, stderr or a file path.
	Output string `yaml:"output"`
	// AddSource adds source code position to log records
	AddSource bool `yaml:"add_source"`
}

// Logger is a slog.Logger that remembers its configuration and owns the log
// file it writes to, if any.
type Logger struct {
	*slog.Logger
	config Config
	file   *os.File
}

// Config returns the configuration the logger was built from, with defaults
// applied.
func (l *Logger) Config() Config {
	return l.config
}

// Close closes the log file. It is a no-op for stdout and stderr.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a level name to its slog.Level, ignoring case.
func ParseLevel(level string) (slog.Level, error) {
	l, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unknown level %q", level)
	}
	return l, nil
}

// Validate reports an unknown level or format. Empty fields are allowed and
// take their defaults in New.
func (cfg Config) Validate() error {
	if cfg.Level != "" {
		if _, err := ParseLevel(cfg.Level); err != nil {
			return fmt.Errorf("level must be one of debug, info, warn, error: %w", err)
		}
	}
	if cfg.Format != "" && !slices.Contains([]string{FormatJSON, FormatText}, cfg.Format) {
		return fmt.Errorf("format must be %s or %s, got %q", FormatJSON, FormatText, cfg.Format)
	}
	return nil
}

// WithDefaults fills in the unset fields.
func (cfg Config) WithDefaults() Config {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.Output == "" {
		cfg.Output = OutputStdout
	}
	return cfg
}

// New creates a logger. Timestamps are written as RFC3339.
func New(cfg Config) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	cfg = cfg.WithDefaults()
	level, _ := ParseLevel(cfg.Level)

	l := &Logger{config: cfg}
	var w io.Writer
	switch cfg.Output {
	case OutputStdout:
		w = os.Stdout
	case OutputStderr:
		w = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %q: %w", cfg.Output, err)
		}
		l.file = f
		w = f
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	if cfg.Format == FormatText {
		l.Logger = slog.New(slog.NewTextHandler(w, opts))
	} else {
		l.Logger = slog.New(slog.NewJSONHandler(w, opts))
	}
	return l, nil
}
