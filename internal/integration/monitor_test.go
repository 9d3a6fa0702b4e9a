package integration

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func staticProvider(metrics ...HealthMetric) MetricsProviderFunc {
	return func(context.Context) ([]HealthMetric, error) {
		return metrics, nil
	}
}

func TestMetricStatusThresholds(t *testing.T) {
	tests := []struct {
		name   string
		metric HealthMetric
		want   HealthStatus
	}{
		{"no thresholds", HealthMetric{Value: 9000}, HealthHealthy},
		{
			"below warning",
			HealthMetric{Value: 50, ThresholdWarning: Threshold(80), ThresholdCritical: Threshold(95)},
			HealthHealthy,
		},
		{
			"at warning",
			HealthMetric{Value: 80, ThresholdWarning: Threshold(80), ThresholdCritical: Threshold(95)},
			HealthDegraded,
		},
		{
			"at critical",
			HealthMetric{Value: 95, ThresholdWarning: Threshold(80), ThresholdCritical: Threshold(95)},
			HealthCritical,
		},
		{
			"critical only",
			HealthMetric{Value: 99, ThresholdCritical: Threshold(95)},
			HealthCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.metric.Status(); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComponentStatusWorstOfLatest(t *testing.T) {
	m := NewMonitor()
	m.RegisterProvider("db", staticProvider(
		HealthMetric{Name: "cpu", Value: 20, ThresholdWarning: Threshold(80)},
		HealthMetric{Name: "disk", Value: 85, ThresholdWarning: Threshold(80), ThresholdCritical: Threshold(95)},
	))

	m.CollectNow(context.Background())

	if got := m.ComponentStatus("db"); got != HealthDegraded {
		t.Errorf("ComponentStatus = %s, want DEGRADED (worst metric wins)", got)
	}
	if got := m.ComponentStatus("ghost"); got != HealthUnknown {
		t.Errorf("unregistered component = %s, want UNKNOWN", got)
	}
}

func TestLatestMetricSupersedesEarlier(t *testing.T) {
	m := NewMonitor()

	value := atomic.Int64{}
	value.Store(99)
	m.RegisterProvider("db", MetricsProviderFunc(func(context.Context) ([]HealthMetric, error) {
		return []HealthMetric{
			{Name: "disk", Value: float64(value.Load()), ThresholdCritical: Threshold(95)},
		}, nil
	}))

	m.CollectNow(context.Background())
	if got := m.ComponentStatus("db"); got != HealthCritical {
		t.Fatalf("status = %s, want CRITICAL", got)
	}

	// A later collection replaces the latest value for the same metric name.
	value.Store(10)
	m.CollectNow(context.Background())
	if got := m.ComponentStatus("db"); got != HealthHealthy {
		t.Errorf("status = %s, want HEALTHY after recovery", got)
	}

	// Both samples stay in the window.
	if got := len(m.MetricWindow("db")); got != 2 {
		t.Errorf("window length = %d, want 2", got)
	}
}

func TestProviderErrorReportsFailing(t *testing.T) {
	m := NewMonitor()
	m.RegisterProvider("db", MetricsProviderFunc(func(context.Context) ([]HealthMetric, error) {
		return nil, fmt.Errorf("connection refused")
	}))

	m.CollectNow(context.Background())

	if got := m.ComponentStatus("db"); got != HealthFailing {
		t.Errorf("status = %s, want FAILING on provider error", got)
	}
}

func TestRegisteredButNeverCollected(t *testing.T) {
	m := NewMonitor()
	m.RegisterProvider("db", staticProvider())

	if got := m.ComponentStatus("db"); got != HealthUnknown {
		t.Errorf("status before first collection = %s, want UNKNOWN", got)
	}

	// A successful empty collection counts as healthy.
	m.CollectNow(context.Background())
	if got := m.ComponentStatus("db"); got != HealthHealthy {
		t.Errorf("status after empty collection = %s, want HEALTHY", got)
	}
}

func TestOverallStatusRollup(t *testing.T) {
	m := NewMonitor()

	if got := m.OverallStatus(); got != HealthUnknown {
		t.Errorf("empty monitor overall = %s, want UNKNOWN", got)
	}

	m.RegisterProvider("db", staticProvider(
		HealthMetric{Name: "disk", Value: 99, ThresholdCritical: Threshold(95)}))
	m.RegisterProvider("api", staticProvider(
		HealthMetric{Name: "latency", Value: 10, ThresholdWarning: Threshold(200)}))

	m.CollectNow(context.Background())

	if got := m.OverallStatus(); got != HealthCritical {
		t.Errorf("overall = %s, want CRITICAL (worst component wins)", got)
	}
}

func TestWindowBound(t *testing.T) {
	m := NewMonitor(WithWindowSize(3))
	m.RegisterProvider("db", staticProvider(HealthMetric{Name: "cpu", Value: 1}))

	for i := 0; i < 5; i++ {
		m.CollectNow(context.Background())
	}

	if got := len(m.MetricWindow("db")); got != 3 {
		t.Errorf("window length = %d, want 3", got)
	}
}

func TestPollingCollectsImmediatelyAndPeriodically(t *testing.T) {
	var polls atomic.Int32
	m := NewMonitor(WithPollingInterval(20 * time.Millisecond))
	m.RegisterProvider("db", MetricsProviderFunc(func(context.Context) ([]HealthMetric, error) {
		polls.Add(1)
		return []HealthMetric{{Name: "cpu", Value: 1}}, nil
	}))

	m.StartPolling(context.Background())
	defer m.StopPolling()

	// The first collection runs before the first tick.
	waitFor(t, func() bool { return polls.Load() >= 1 }, "no immediate collection")
	waitFor(t, func() bool { return polls.Load() >= 3 }, "no periodic collection")

	m.StopPolling()
	settled := polls.Load()
	time.Sleep(60 * time.Millisecond)
	if polls.Load() != settled {
		t.Error("collection continued after StopPolling")
	}
}

func TestVisualizationData(t *testing.T) {
	m := NewMonitor()
	m.RegisterProvider("db", staticProvider(
		HealthMetric{Name: "disk", Value: 85, ThresholdWarning: Threshold(80)}))

	m.CollectNow(context.Background())
	data := m.VisualizationData()

	if data["overall_status"] != string(HealthDegraded) {
		t.Errorf("overall_status = %v", data["overall_status"])
	}

	componentStatus := data["component_status"].(map[string]string)
	if componentStatus["db"] != string(HealthDegraded) {
		t.Errorf("component_status = %v", componentStatus)
	}

	summary := data["metrics_summary"].(map[string]any)["db"].(map[string]any)
	disk := summary["disk"].(map[string]any)
	if disk["value"] != 85.0 || disk["status"] != string(HealthDegraded) {
		t.Errorf("metric summary = %v", disk)
	}
	if _, err := time.Parse(time.RFC3339, disk["timestamp"].(string)); err != nil {
		t.Errorf("metric timestamp not RFC3339: %v", disk["timestamp"])
	}
	if _, err := time.Parse(time.RFC3339, data["timestamp"].(string)); err != nil {
		t.Errorf("snapshot timestamp not RFC3339: %v", data["timestamp"])
	}
}

func TestUnregisterProviderDropsState(t *testing.T) {
	m := NewMonitor()
	m.RegisterProvider("db", staticProvider(HealthMetric{Name: "cpu", Value: 1}))
	m.CollectNow(context.Background())

	m.UnregisterProvider("db")

	if got := m.ComponentStatus("db"); got != HealthUnknown {
		t.Errorf("status after unregister = %s, want UNKNOWN", got)
	}
	if m.LatestMetrics("db") != nil {
		t.Error("metrics survived unregistration")
	}
}
