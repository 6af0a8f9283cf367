package cycle

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/ciwatch/metrics"
)

const (
	metricAlerts         = "alerts_total"
	metricSinkFailures   = "sink_failures_total"
	metricStreakLength   = "failure_streak_length"
	metricMalformed      = "malformed_records_total"
	metricCycleRecords   = "cycle_records"
	metricLastCycleEnded = "last_cycle_timestamp_seconds"
)

// Metrics are the instruments an Evaluator records into. Create them once
// per registry and share them between evaluators, since a scrape registry
// rejects duplicate registration.
type Metrics struct {
	alerts       metrics.CounterVec
	sinkFailures metrics.CounterVec
	streakLength metrics.GaugeVec
	malformed    metrics.Counter
	records      metrics.Gauge
	lastCycle    metrics.Gauge
}

// NewMetrics registers the cycle metrics with registry. A nil registry
// yields metrics that record nothing.
func NewMetrics(registry metrics.Registry) (*Metrics, error) {
	if registry == nil {
		registry = metrics.NopRegistry{}
	}

	m := &Metrics{}
	var err error

	m.alerts, err = registry.NewCounterVec(prometheus.CounterOpts{
		Name: metricAlerts,
		Help: "Count of regression alerts emitted",
	}, []string{"severity"})
	if err != nil {
		return nil, fmt.Errorf("creating %s metric: %w", metricAlerts, err)
	}

	m.sinkFailures, err = registry.NewCounterVec(prometheus.CounterOpts{
		Name: metricSinkFailures,
		Help: "Count of failed alert deliveries",
	}, []string{"sink"})
	if err != nil {
		return nil, fmt.Errorf("creating %s metric: %w", metricSinkFailures, err)
	}

	m.streakLength, err = registry.NewGaugeVec(prometheus.GaugeOpts{
		Name: metricStreakLength,
		Help: "Consecutive most recent failures of a job",
	}, []string{"job", "tier"})
	if err != nil {
		return nil, fmt.Errorf("creating %s metric: %w", metricStreakLength, err)
	}

	m.malformed, err = registry.NewCounter(prometheus.CounterOpts{
		Name: metricMalformed,
		Help: "Count of run records excluded as malformed",
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s metric: %w", metricMalformed, err)
	}

	m.records, err = registry.NewGauge(prometheus.GaugeOpts{
		Name: metricCycleRecords,
		Help: "Valid records evaluated by the last cycle",
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s metric: %w", metricCycleRecords, err)
	}

	m.lastCycle, err = registry.NewGauge(prometheus.GaugeOpts{
		Name: metricLastCycleEnded,
		Help: "Unix timestamp of the last completed cycle",
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s metric: %w", metricLastCycleEnded, err)
	}

	return m, nil
}
