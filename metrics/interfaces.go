// Package metrics records ciwatch's Prometheus-compatible metrics.
//
// Code records through a Registry and does not care how samples leave the
// process. The server scrapes a ScrapeRegistry at GET /metrics. The one-shot
// CLI buffers into a PushRegistry and flushes it to a VictoriaMetrics or
// Prometheus remote write endpoint before exiting. NopRegistry drops
// everything.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Gauge holds a value that can go up and down.
type Gauge interface {
	Set(float64)
}

// Counter only increases. Add panics on a negative value.
type Counter interface {
	Inc()
	Add(float64)
}

// GaugeVec partitions a Gauge by label values.
type GaugeVec interface {
	With(prometheus.Labels) Gauge
}

// CounterVec partitions a Counter by label values.
type CounterVec interface {
	With(prometheus.Labels) Counter
}

// Registry creates metrics. A registry may refuse a name it already holds.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}

// Flusher is implemented by registries that buffer samples until told to
// send them.
type Flusher interface {
	Flush(ctx context.Context) error
}

var (
	_ Registry = (*ScrapeRegistry)(nil)
	_ Registry = (*PushRegistry)(nil)
	_ Registry = NopRegistry{}
	_ Flusher  = (*PushRegistry)(nil)
)
