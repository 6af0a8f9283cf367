package metrics

import "github.com/prometheus/client_golang/prometheus"

// NopRegistry implements Registry with metrics that record nothing.
type NopRegistry struct{}

// NewGauge implements Registry.
func (NopRegistry) NewGauge(prometheus.GaugeOpts) (Gauge, error) {
	return nopMetric{}, nil
}

// NewGaugeVec implements Registry.
func (NopRegistry) NewGaugeVec(prometheus.GaugeOpts, []string) (GaugeVec, error) {
	return nopMetric{}, nil
}

// NewCounter implements Registry.
func (NopRegistry) NewCounter(prometheus.CounterOpts) (Counter, error) {
	return nopMetric{}, nil
}

// NewCounterVec implements Registry.
func (NopRegistry) NewCounterVec(prometheus.CounterOpts, []string) (CounterVec, error) {
	return nopCounterVec{}, nil
}

type nopMetric struct{}

func (nopMetric) Set(float64)                  {}
func (nopMetric) Inc()                         {}
func (nopMetric) Add(float64)                  {}
func (nopMetric) With(prometheus.Labels) Gauge { return nopMetric{} }

type nopCounterVec struct{}

func (nopCounterVec) With(prometheus.Labels) Counter { return nopMetric{} }
