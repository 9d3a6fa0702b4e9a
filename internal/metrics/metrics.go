// Package metrics provides Prometheus metrics for the integration fabric.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "fabric"
)

// Event bus metrics track publish/dispatch behavior.
var (
	// EventsPublishedTotal is the total number of events published by category.
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total number of events published",
	}, []string{"category"})

	// EventsDroppedTotal is the total number of events dropped from full
	// subscriber mailboxes.
	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Total number of events dropped due to full subscriber mailboxes",
	}, []string{"event_type"})

	// EventsPersistedTotal is the total number of events appended to the
	// persistent event file.
	EventsPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_persisted_total",
		Help:      "Total number of events written to the persistent event file",
	})

	// EventHandlerPanicsTotal is the total number of recovered subscriber
	// handler panics.
	EventHandlerPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_handler_panics_total",
		Help:      "Total number of recovered event handler panics",
	})

	// EventSubscribers is the current number of bus subscribers.
	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_subscribers",
		Help:      "Current number of event bus subscribers",
	})
)

// Status metrics track tracker and dashboard activity.
var (
	// StatusTransitionsTotal is the total number of recorded status updates
	// by resulting state.
	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Total number of recorded status transitions",
	}, []string{"state"})

	// IllegalTransitionsTotal is the total number of rejected status updates.
	IllegalTransitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "illegal_transitions_total",
		Help:      "Total number of rejected illegal status transitions",
	})

	// CascadeUpdatesTotal is the total number of cascaded status writes.
	CascadeUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cascade_updates_total",
		Help:      "Total number of status updates propagated to dependents",
	})

	// AlertsFiredTotal is the total number of alert callback invocations.
	AlertsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_fired_total",
		Help:      "Total number of alert callback invocations",
	}, []string{"state"})

	// ComponentUp tracks per-component nominal status (1=nominal, 0=not).
	ComponentUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "component_up",
		Help:      "Whether a component is in a nominal state (1=nominal, 0=not)",
	}, []string{"component"})
)

// Transaction metrics track the transaction logger.
var (
	// TransactionsTotal is the total number of transactions by terminal stage.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_total",
		Help:      "Total number of transactions reaching a terminal stage",
	}, []string{"stage"})

	// TransactionsActive is the current number of non-terminal transactions.
	TransactionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "transactions_active",
		Help:      "Current number of active (non-terminal) transactions",
	})

	// TransactionDuration is a histogram of terminal transaction duration.
	TransactionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transaction_duration_seconds",
		Help:      "Duration of completed transactions in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
	})
)

// Health metrics track the integration health monitor.
var (
	// HealthPollsTotal is the total number of metric collection cycles.
	HealthPollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "health_polls_total",
		Help:      "Total number of health metric collection cycles",
	})

	// HealthProviderErrorsTotal is the total number of provider collection errors.
	HealthProviderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "health_provider_errors_total",
		Help:      "Total number of health metric provider errors",
	}, []string{"component"})
)

// Registry metrics track component registration.
var (
	// ComponentsRegistered is the current number of registered components.
	ComponentsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "components_registered",
		Help:      "Current number of registered components",
	})
)
