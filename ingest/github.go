// Package ingest pulls workflow runs from GitHub Actions into a run store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/nomis52/ciwatch/runs"
)

const (
	DefaultAPIBase = "https://api.github.com"
	DefaultPerPage = 50
	defaultTimeout = 30 * time.Second
	maxPerPage     = 100
)

// ClientConfig configures a GitHub Actions client.
type ClientConfig struct {
	APIBase string
	Owner   string
	Repo    string
	// Token authenticates requests. Unauthenticated requests are heavily
	// rate limited.
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client lists workflow runs for one repository.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a GitHub Actions client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("repository owner and name are required")
	}

	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = DefaultAPIBase
	}
	endpoint, err := url.JoinPath(base, "repos", cfg.Owner, cfg.Repo, "actions", "runs")
	if err != nil {
		return nil, fmt.Errorf("build runs endpoint: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	if cfg.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
		authed.Timeout = hc.Timeout
		hc = authed
	}

	return &Client{endpoint: endpoint, client: hc}, nil
}

// Endpoint returns the runs URL the client queries.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type workflowRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	JobName    string    `json:"job_name"`
	Status     string    `json:"status"`
	Conclusion *string   `json:"conclusion"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	HeadSHA    string    `json:"head_sha"`
	HeadBranch string    `json:"head_branch"`
	HTMLURL    string    `json:"html_url"`
}

type runsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []workflowRun `json:"workflow_runs"`
}

func (w workflowRun) record() runs.Record {
	var conclusion string
	if w.Conclusion != nil {
		conclusion = *w.Conclusion
	}
	var id string
	if w.ID != 0 {
		id = strconv.FormatInt(w.ID, 10)
	}
	return runs.Record{
		RunID:        id,
		WorkflowName: w.Name,
		JobName:      w.JobName,
		Status:       w.Status,
		Conclusion:   conclusion,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
		CommitSHA:    w.HeadSHA,
		Branch:       w.HeadBranch,
		URL:          w.HTMLURL,
	}.Normalize()
}

// ListRuns returns the most recent workflow runs, newest first as GitHub
// orders them. perPage is clamped to 1..100.
func (c *Client) ListRuns(ctx context.Context, perPage int) ([]runs.Record, error) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	u := c.endpoint + "?" + url.Values{"per_page": {strconv.Itoa(perPage)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create runs request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch workflow runs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("fetch workflow runs: %s: %s", resp.Status, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			err = fmt.Errorf("%w (rate limited? configure a GitHub token)", err)
		}
		return nil, err
	}

	var payload runsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode workflow runs: %w", err)
	}

	records := make([]runs.Record, len(payload.WorkflowRuns))
	for i, w := range payload.WorkflowRuns {
		records[i] = w.record()
	}
	return records, nil
}
