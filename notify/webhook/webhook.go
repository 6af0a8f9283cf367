// Package webhook posts alerts to a chat webhook as a JSON {"text": ...} body.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nomis52/ciwatch/notify"
)

const (
	defaultTimeout = 10 * time.Second
	retryDelay     = 200 * time.Millisecond
	maxErrorBody   = 512
)

// Config configures the webhook sink.
type Config struct {
	// Endpoint is the URL alerts are posted to. Empty disables the sink.
	Endpoint string
	// Timeout bounds each POST. Defaults to 10s.
	Timeout time.Duration
	// RetryLimit is the number of extra attempts after a failed POST.
	RetryLimit int
	Client     *http.Client
	Logger     *slog.Logger
}

// Sink delivers alerts to a webhook endpoint.
type Sink struct {
	endpoint   string
	retryLimit int
	client     *http.Client
	logger     *slog.Logger
}

var _ notify.Sink = (*Sink)(nil)

// New creates a webhook sink. A missing endpoint is not an error: the sink
// logs a warning on every alert and delivers nothing.
func New(cfg Config) *Sink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sink{
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		retryLimit: retries,
		client:     hc,
		logger:     logger.With("component", "webhook"),
	}
}

// Enabled reports whether an endpoint is configured.
func (s *Sink) Enabled() bool {
	return s.endpoint != ""
}

// Notify posts the alert. Failures wrap notify.ErrTransientDelivery.
func (s *Sink) Notify(ctx context.Context, a notify.Alert) error {
	if !s.Enabled() {
		s.logger.WarnContext(ctx, "webhook endpoint not configured, skipping notification",
			"job", a.Job,
			"run_id", a.RunID,
		)
		return nil
	}

	body, err := json.Marshal(map[string]string{"text": Text(a)})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	attempts := s.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		lastErr = s.post(ctx, body)
		if lastErr == nil {
			s.logger.DebugContext(ctx, "webhook alert sent", "job", a.Job, "run_id", a.RunID)
			return nil
		}
		if attempt < attempts-1 {
			delay := time.Duration(attempt+1) * retryDelay
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(lastErr, ctx.Err())
			case <-timer.C:
			}
		}
	}
	return lastErr
}

func (s *Sink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: webhook request: %w", notify.ErrTransientDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: webhook %s: %s", notify.ErrTransientDelivery, resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Text renders the message body posted for a.
func Text(a notify.Alert) string {
	emoji := "⚠️"
	if a.IsSevere() {
		emoji = "🚨"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *CI Alert: %s*\n", emoji, a.Type)
	fmt.Fprintf(&b, "*Job:* %s\n", a.Job)
	fmt.Fprintf(&b, "*Workflow:* %s\n", a.Workflow)
	fmt.Fprintf(&b, "*Branch:* %s", a.Branch)
	if a.Duration != "" {
		fmt.Fprintf(&b, "\n*Duration:* %s", a.Duration)
	}
	fmt.Fprintf(&b, "\n<%s|View Run Details>", a.URL)
	return b.String()
}
