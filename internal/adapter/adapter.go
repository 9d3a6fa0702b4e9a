// Package adapter bridges the component registry, the status tracker, and
// the health dashboard, and mirrors status activity onto the event bus.
package adapter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edufabric/integration-fabric/internal/dashboard"
	"github.com/edufabric/integration-fabric/internal/events"
	"github.com/edufabric/integration-fabric/internal/registry"
	"github.com/edufabric/integration-fabric/internal/state"
	"github.com/edufabric/integration-fabric/internal/status"
)

// changeHistoryLimit bounds the per-component change log kept by the adapter.
const changeHistoryLimit = 100

// ChangeRecord is one entry in a component's change log.
type ChangeRecord struct {
	ComponentID string               `json:"component_id"`
	From        state.ComponentState `json:"from"`
	To          state.ComponentState `json:"to"`
	Timestamp   time.Time            `json:"timestamp"`
	Forced      bool                 `json:"forced,omitempty"`
}

// Adapter wires a registry, tracker, and dashboard together. Component
// registration through the adapter binds a live status provider, seeds
// initial status, and announces the component on the bus. Lock order across
// the fabric is registry -> tracker -> dashboard -> adapter; the adapter
// never invokes callbacks under its own lock.
type Adapter struct {
	registry  *registry.Registry
	tracker   *status.Tracker
	dashboard *dashboard.Dashboard
	bus       *events.Bus
	logger    *slog.Logger

	mu      sync.Mutex
	changes map[string][]ChangeRecord
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// New creates an adapter over the given fabric pieces. The bus may be nil,
// in which case no events are published.
func New(reg *registry.Registry, tracker *status.Tracker, dash *dashboard.Dashboard, bus *events.Bus, opts ...Option) *Adapter {
	a := &Adapter{
		registry:  reg,
		tracker:   tracker,
		dashboard: dash,
		bus:       bus,
		logger:    slog.Default(),
		changes:   make(map[string][]ChangeRecord),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// RegisterComponent registers a component with the registry, binds a status
// provider to the live component record, seeds the tracker with a forced
// initial update, and publishes a component-registered event.
func (a *Adapter) RegisterComponent(id string, initial state.ComponentState, metadata map[string]any, opts ...registry.RegisterOption) (*registry.Component, error) {
	if initial == "" {
		initial = state.StateUnknown
	}

	regOpts := append([]registry.RegisterOption{
		registry.WithState(initial),
		registry.WithMetadata(metadata),
	}, opts...)

	component, err := a.registry.Register(id, regOpts...)
	if err != nil {
		return nil, err
	}

	a.tracker.RegisterProvider(id, status.ProviderFunc(func() state.ComponentStatus {
		return state.ComponentStatus{
			ComponentID: id,
			State:       component.State(),
			Timestamp:   time.Now().UTC(),
		}
	}))
	a.tracker.SetFallback(id, component.State)

	if err := a.dashboard.UpdateStatus(id, initial, status.Force()); err != nil {
		a.logger.Warn("initial status update failed", "component", id, "error", err)
	}
	a.recordChange(id, state.StateUnknown, initial, true)

	a.publish(events.New(events.TypeComponentRegistered, events.CategorySystem, id,
		events.WithData(map[string]any{
			"component_id": id,
			"state":        string(initial),
		})))

	return component, nil
}

// UnregisterComponent removes a component from the registry, tracker, and
// dashboard, including callbacks, listeners, and change history.
func (a *Adapter) UnregisterComponent(id string) bool {
	if !a.registry.Unregister(id) {
		return false
	}

	a.tracker.Remove(id)
	a.dashboard.Remove(id)

	a.mu.Lock()
	delete(a.changes, id)
	a.mu.Unlock()

	a.publish(events.New(events.TypeComponentUnregistered, events.CategorySystem, id,
		events.WithData(map[string]any{"component_id": id})))
	return true
}

// UpdateComponentStatus validates and records a status update for a
// registered component, fires dashboard listeners and alerts, cascades to
// dependents, publishes a status-changed event, and records the change.
// An empty newState polls the component's provider.
func (a *Adapter) UpdateComponentStatus(id string, newState state.ComponentState, opts ...status.UpdateOption) error {
	if !a.registry.Has(id) {
		return fmt.Errorf("%w: %s", registry.ErrUnknownComponent, id)
	}

	before := a.tracker.GetStatus(id).State

	if err := a.dashboard.UpdateStatus(id, newState, opts...); err != nil {
		return err
	}

	written := a.tracker.GetStatus(id)
	if component := a.registry.GetComponent(id); component != nil {
		component.SetState(written.State)
	}

	forced := false
	if history := a.tracker.GetHistory(id, time.Time{}, time.Time{}); len(history) > 0 {
		last := history[len(history)-1]
		forced, _ = last.Metrics["forced"].(bool)
	}
	a.recordChange(id, before, written.State, forced)

	a.publish(events.NewStatusChanged(id, string(written.State), written.Details))
	return nil
}

// ChangeHistory returns the recorded state changes for a component,
// oldest-first.
func (a *Adapter) ChangeHistory(id string) []ChangeRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	records := a.changes[id]
	out := make([]ChangeRecord, len(records))
	copy(out, records)
	return out
}

// RegisterAlertCallback registers a dashboard alert callback.
func (a *Adapter) RegisterAlertCallback(cb dashboard.AlertCallback) {
	a.dashboard.RegisterAlertCallback(cb)
}

// RegisterStatusListener registers a dashboard status listener.
func (a *Adapter) RegisterStatusListener(listener dashboard.StatusListener) {
	a.dashboard.RegisterStatusListener(listener)
}

func (a *Adapter) recordChange(id string, from, to state.ComponentState, forced bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	records := append(a.changes[id], ChangeRecord{
		ComponentID: id,
		From:        from,
		To:          to,
		Timestamp:   time.Now().UTC(),
		Forced:      forced,
	})
	if len(records) > changeHistoryLimit {
		records = records[len(records)-changeHistoryLimit:]
	}
	a.changes[id] = records
}

func (a *Adapter) publish(event events.Event) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(event)
}
