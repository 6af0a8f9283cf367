package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second
)

// PushRegistry implements Registry for push-based metrics collection.
// Metric updates are buffered and sent to a VictoriaMetrics/Prometheus remote
// write endpoint by Flush, one sample per series.
type PushRegistry struct {
	pusher *pusher
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:9090").
	URL string
	// Prefix is the metric name prefix. All metric names will be prefixed with this value
	// followed by an underscore.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// NewPushRegistry creates a new PushRegistry that pushes metrics to the given URL.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	p := &pusher{
		url:        strings.TrimRight(cfg.URL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		pending:    make(map[string]sample),
	}
	return &PushRegistry{pusher: p}
}

// NewGauge creates a new push-based Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{
		pusher: r.pusher,
		name:   opts.Name,
	}, nil
}

// NewGaugeVec creates a new push-based GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{
		pusher: r.pusher,
		name:   opts.Name,
		labels: labels,
	}, nil
}

// NewCounter creates a new push-based Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{
		pusher: r.pusher,
		name:   opts.Name,
	}, nil
}

// NewCounterVec creates a new push-based CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{
		pusher: r.pusher,
		name:   opts.Name,
		labels: labels,
	}, nil
}

// Pending returns the number of series waiting to be pushed.
func (r *PushRegistry) Pending() int {
	r.pusher.mu.Lock()
	defer r.pusher.mu.Unlock()
	return len(r.pusher.pending)
}

// Flush sends every buffered series in a single write request. The buffer is
// cleared only when the push succeeds.
func (r *PushRegistry) Flush(ctx context.Context) error {
	return r.pusher.flush(ctx)
}

type sample struct {
	name   string
	labels map[string]string
	value  float64
	at     time.Time
}

// pusher buffers samples and handles remote write to VictoriaMetrics/Prometheus.
type pusher struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string

	mu      sync.Mutex
	pending map[string]sample // series key -> latest sample
}

// record buffers the latest value of a series.
func (p *pusher) record(name string, value float64, labels map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[name+"{"+labelsToKey(labels)+"}"] = sample{
		name:   name,
		labels: labels,
		value:  value,
		at:     time.Now(),
	}
}

func (p *pusher) flush(ctx context.Context) error {
	p.mu.Lock()
	keys := make([]string, 0, len(p.pending))
	for k := range p.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	timeseries := make([]prompb.TimeSeries, 0, len(keys))
	for _, k := range keys {
		timeseries = append(timeseries, p.metricToTimeSeries(p.pending[k]))
	}
	p.mu.Unlock()

	if len(timeseries) == 0 {
		return nil
	}

	req := &prompb.WriteRequest{
		Timeseries: timeseries,
	}

	data, err := proto.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	p.mu.Lock()
	for _, k := range keys {
		delete(p.pending, k)
	}
	p.mu.Unlock()
	return nil
}

// metricToTimeSeries converts a buffered sample to Prometheus TimeSeries format.
func (p *pusher) metricToTimeSeries(s sample) prompb.TimeSeries {
	promLabels := make([]prompb.Label, 0, len(s.labels)+3)

	metricName := s.name
	if p.prefix != "" {
		metricName = p.prefix + "_" + s.name
	}
	promLabels = append(promLabels, prompb.Label{
		Name:  "__name__",
		Value: metricName,
	})

	if p.job != "" {
		promLabels = append(promLabels, prompb.Label{
			Name:  "job",
			Value: p.job,
		})
	}
	if p.instance != "" {
		promLabels = append(promLabels, prompb.Label{
			Name:  "instance",
			Value: p.instance,
		})
	}

	names := make([]string, 0, len(s.labels))
	for k := range s.labels {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		promLabels = append(promLabels, prompb.Label{
			Name:  k,
			Value: s.labels[k],
		})
	}

	return prompb.TimeSeries{
		Labels: promLabels,
		Samples: []prompb.Sample{{
			Value:     s.value,
			Timestamp: s.at.UnixMilli(),
		}},
	}
}

// pushGauge implements Gauge for push mode.
type pushGauge struct {
	pusher *pusher
	name   string
	labels map[string]string
}

func (g *pushGauge) Set(v float64) {
	g.pusher.record(g.name, v, g.labels)
}

// pushGaugeVec implements GaugeVec for push mode.
type pushGaugeVec struct {
	pusher *pusher
	name   string
	labels []string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{
		pusher: g.pusher,
		name:   g.name,
		labels: labels,
	}
}

// pushCounter implements Counter for push mode. The pushed value is the
// running total.
type pushCounter struct {
	mu     sync.Mutex
	pusher *pusher
	name   string
	labels map[string]string
	value  float64
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	c.mu.Lock()
	c.value += v
	value := c.value
	c.mu.Unlock()
	c.pusher.record(c.name, value, c.labels)
}

// pushCounterVec implements CounterVec for push mode.
type pushCounterVec struct {
	mu       sync.Mutex
	pusher   *pusher
	name     string
	labels   []string
	counters map[string]*pushCounter
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	key := labelsToKey(labels)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counters == nil {
		c.counters = make(map[string]*pushCounter)
	}

	if counter, ok := c.counters[key]; ok {
		return counter
	}

	counter := &pushCounter{
		pusher: c.pusher,
		name:   c.name,
		labels: labels,
	}
	c.counters[key] = counter
	return counter
}

// labelsToKey creates a deterministic string key from labels for map lookup.
func labelsToKey(labels map[string]string) string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
