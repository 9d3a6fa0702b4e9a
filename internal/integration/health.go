// Package integration collects health metrics from registered providers on a
// polling interval, derives per-component health from metric thresholds, and
// rolls the results up into an overall system status.
package integration

import (
	"context"
	"time"
)

// HealthStatus is the derived health of a component or of the whole system.
type HealthStatus string

const (
	HealthUnknown  HealthStatus = "UNKNOWN"
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthFailing  HealthStatus = "FAILING"
	HealthCritical HealthStatus = "CRITICAL"
)

// healthRank orders statuses from best to worst for worst-of rollups.
var healthRank = map[HealthStatus]int{
	HealthUnknown:  0,
	HealthHealthy:  1,
	HealthDegraded: 2,
	HealthFailing:  3,
	HealthCritical: 4,
}

// worseOf returns the worse of two statuses.
func worseOf(a, b HealthStatus) HealthStatus {
	if healthRank[b] > healthRank[a] {
		return b
	}
	return a
}

// MetricType labels the kind of measurement a metric carries.
type MetricType string

const (
	MetricGauge   MetricType = "gauge"
	MetricCounter MetricType = "counter"
	MetricLatency MetricType = "latency"
)

// HealthMetric is a single measurement reported by a component. Thresholds
// are optional; a nil threshold never trips.
type HealthMetric struct {
	Name              string         `json:"name"`
	Value             float64        `json:"value"`
	Type              MetricType     `json:"type"`
	ComponentID       string         `json:"component_id"`
	Timestamp         time.Time      `json:"timestamp"`
	ThresholdWarning  *float64       `json:"threshold_warning,omitempty"`
	ThresholdCritical *float64       `json:"threshold_critical,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// Threshold is a convenience for building metric literals.
func Threshold(v float64) *float64 {
	return &v
}

// Status derives the metric's health: critical if the value meets the
// critical threshold, else degraded if it meets the warning threshold,
// else healthy.
func (m HealthMetric) Status() HealthStatus {
	if m.ThresholdCritical != nil && m.Value >= *m.ThresholdCritical {
		return HealthCritical
	}
	if m.ThresholdWarning != nil && m.Value >= *m.ThresholdWarning {
		return HealthDegraded
	}
	return HealthHealthy
}

// MetricsProvider supplies the current metrics of one component. Providers
// may block on I/O; collection passes the polling context through.
type MetricsProvider interface {
	GetHealthMetrics(ctx context.Context) ([]HealthMetric, error)
}

// MetricsProviderFunc adapts a function to the MetricsProvider interface.
type MetricsProviderFunc func(ctx context.Context) ([]HealthMetric, error)

// GetHealthMetrics invokes the wrapped function.
func (f MetricsProviderFunc) GetHealthMetrics(ctx context.Context) ([]HealthMetric, error) {
	return f(ctx)
}
