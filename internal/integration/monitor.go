package integration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/edufabric/integration-fabric/internal/metrics"
)

// DefaultPollingInterval is the default metric collection period.
const DefaultPollingInterval = 60 * time.Second

// defaultWindowSize bounds the per-component metric window.
const defaultWindowSize = 100

// componentHealth is the monitor's view of one component.
type componentHealth struct {
	window        []HealthMetric
	latest        map[string]HealthMetric
	providerError error
	lastCollected time.Time
}

// Monitor periodically collects health metrics from registered providers and
// derives per-component and overall health. It is safe for concurrent use.
type Monitor struct {
	mu         sync.RWMutex
	providers  map[string]MetricsProvider
	components map[string]*componentHealth

	interval   time.Duration
	windowSize int
	logger     *slog.Logger

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPollingInterval sets the collection period.
func WithPollingInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithWindowSize bounds how many recent metrics are kept per component.
func WithWindowSize(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.windowSize = n
		}
	}
}

// WithLogger sets the monitor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// NewMonitor creates an idle monitor. Call StartPolling to begin collection.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		providers:  make(map[string]MetricsProvider),
		components: make(map[string]*componentHealth),
		interval:   DefaultPollingInterval,
		windowSize: defaultWindowSize,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// RegisterProvider attaches a metrics provider for a component id.
func (m *Monitor) RegisterProvider(componentID string, provider MetricsProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[componentID] = provider
	if _, ok := m.components[componentID]; !ok {
		m.components[componentID] = &componentHealth{latest: make(map[string]HealthMetric)}
	}
}

// UnregisterProvider detaches a provider and drops its collected state.
func (m *Monitor) UnregisterProvider(componentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.providers, componentID)
	delete(m.components, componentID)
}

// StartPolling begins periodic collection. An immediate collection runs
// first so health is available before the first interval elapses. Calling
// StartPolling on a running monitor restarts it.
func (m *Monitor) StartPolling(ctx context.Context) {
	m.StopPolling()

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.cancelMu.Lock()
	m.cancel = cancel
	m.done = done
	m.cancelMu.Unlock()

	go func() {
		defer close(done)

		m.CollectNow(pollCtx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				m.CollectNow(pollCtx)
			}
		}
	}()
}

// StopPolling cancels the polling task and waits for it to exit; the task
// observes cancellation within one interval.
func (m *Monitor) StopPolling() {
	m.cancelMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.cancelMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// CollectNow runs a single collection cycle over all registered providers.
func (m *Monitor) CollectNow(ctx context.Context) {
	m.mu.RLock()
	providers := make(map[string]MetricsProvider, len(m.providers))
	for id, p := range m.providers {
		providers[id] = p
	}
	m.mu.RUnlock()

	metrics.HealthPollsTotal.Inc()

	for id, provider := range providers {
		collected, err := provider.GetHealthMetrics(ctx)
		if err != nil {
			metrics.HealthProviderErrorsTotal.WithLabelValues(id).Inc()
			m.logger.Warn("health metric collection failed", "component", id, "error", err)
		}
		m.record(id, collected, err)

		if ctx.Err() != nil {
			return
		}
	}
}

// record stores one provider's collection result.
func (m *Monitor) record(componentID string, collected []HealthMetric, providerErr error) {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.components[componentID]
	if !ok {
		ch = &componentHealth{latest: make(map[string]HealthMetric)}
		m.components[componentID] = ch
	}

	ch.providerError = providerErr
	ch.lastCollected = now

	for _, metric := range collected {
		if metric.ComponentID == "" {
			metric.ComponentID = componentID
		}
		if metric.Timestamp.IsZero() {
			metric.Timestamp = now
		}
		ch.window = append(ch.window, metric)
		ch.latest[metric.Name] = metric
	}
	if len(ch.window) > m.windowSize {
		ch.window = ch.window[len(ch.window)-m.windowSize:]
	}
}

// ComponentStatus derives a component's health from the worst of its latest
// metrics; a provider error reports FAILING regardless of metric values.
func (m *Monitor) ComponentStatus(componentID string) HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.componentStatusLocked(componentID)
}

func (m *Monitor) componentStatusLocked(componentID string) HealthStatus {
	ch, ok := m.components[componentID]
	if !ok {
		return HealthUnknown
	}
	if ch.providerError != nil {
		return HealthFailing
	}
	if len(ch.latest) == 0 {
		if ch.lastCollected.IsZero() {
			return HealthUnknown
		}
		return HealthHealthy
	}

	status := HealthHealthy
	for _, metric := range ch.latest {
		status = worseOf(status, metric.Status())
	}
	return status
}

// OverallStatus is the worst per-component status, or UNKNOWN with no
// components.
func (m *Monitor) OverallStatus() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.components) == 0 {
		return HealthUnknown
	}

	overall := HealthHealthy
	for id := range m.components {
		overall = worseOf(overall, m.componentStatusLocked(id))
	}
	return overall
}

// LatestMetrics returns the latest value per metric name for a component.
func (m *Monitor) LatestMetrics(componentID string) map[string]HealthMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.components[componentID]
	if !ok {
		return nil
	}
	out := make(map[string]HealthMetric, len(ch.latest))
	for name, metric := range ch.latest {
		out[name] = metric
	}
	return out
}

// MetricWindow returns the retained recent metrics for a component,
// oldest-first.
func (m *Monitor) MetricWindow(componentID string) []HealthMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.components[componentID]
	if !ok {
		return nil
	}
	out := make([]HealthMetric, len(ch.window))
	copy(out, ch.window)
	return out
}

// VisualizationData returns the read-API snapshot: overall status,
// per-component status, and per-metric latest value with derived status.
func (m *Monitor) VisualizationData() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	componentStatus := make(map[string]string, len(m.components))
	metricsSummary := make(map[string]any, len(m.components))

	overall := HealthUnknown
	if len(m.components) > 0 {
		overall = HealthHealthy
	}

	for id, ch := range m.components {
		status := m.componentStatusLocked(id)
		overall = worseOf(overall, status)
		componentStatus[id] = string(status)

		summary := make(map[string]any, len(ch.latest))
		for name, metric := range ch.latest {
			summary[name] = map[string]any{
				"value":     metric.Value,
				"status":    string(metric.Status()),
				"timestamp": metric.Timestamp.Format(time.RFC3339),
			}
		}
		metricsSummary[id] = summary
	}

	return map[string]any{
		"overall_status":   string(overall),
		"component_status": componentStatus,
		"metrics_summary":  metricsSummary,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	}
}

// Reset wipes all monitor state. Test-only.
func (m *Monitor) Reset() {
	m.StopPolling()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = make(map[string]MetricsProvider)
	m.components = make(map[string]*componentHealth)
}
