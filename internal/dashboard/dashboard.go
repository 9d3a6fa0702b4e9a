// Package dashboard provides the queryable service-health view over the
// status tracker, enriched with listener and alert callbacks and
// dependency-aware cascading of impairment to dependents.
package dashboard

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edufabric/integration-fabric/internal/metrics"
	"github.com/edufabric/integration-fabric/internal/state"
	"github.com/edufabric/integration-fabric/internal/status"
)

// GraphView is the read surface the dashboard needs from the dependency
// graph. *graph.DependencyGraph satisfies it.
type GraphView interface {
	DependentsOf(id string) []string
	AllEdges() map[string][]string
}

// AlertCallback fires on a transition into an alertable state.
type AlertCallback func(componentID string, st state.ComponentState, current state.ComponentStatus)

// StatusListener fires on every status update.
type StatusListener func(current state.ComponentStatus)

// Dashboard is a read-mostly facade over the tracker. All callback
// invocations happen outside its lock; callback lists are copied before
// iteration so callbacks may safely mutate registrations.
type Dashboard struct {
	mu sync.Mutex

	tracker *status.Tracker
	graph   GraphView
	logger  *slog.Logger

	watched        map[string]bool
	watchListeners map[string][]StatusListener
	listeners      []StatusListener
	alerts         []AlertCallback

	// lastAlerted dedupes alert callbacks per component until the component
	// leaves the alert set and re-enters it.
	lastAlerted map[string]state.ComponentState

	// lastNotified backs change detection in AllComponentStatuses.
	lastNotified map[string]state.ComponentState

	cascadeEnabled bool
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithLogger sets the dashboard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dashboard) { d.logger = logger }
}

// WithoutCascade disables cascading, leaving only recording and callbacks.
func WithoutCascade() Option {
	return func(d *Dashboard) { d.cascadeEnabled = false }
}

// New creates a dashboard over a tracker and a dependency graph view.
func New(tracker *status.Tracker, graph GraphView, opts ...Option) *Dashboard {
	d := &Dashboard{
		tracker:        tracker,
		graph:          graph,
		logger:         slog.Default(),
		watched:        make(map[string]bool),
		watchListeners: make(map[string][]StatusListener),
		lastAlerted:    make(map[string]state.ComponentState),
		lastNotified:   make(map[string]state.ComponentState),
		cascadeEnabled: true,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// CascadeEnabled reports whether this dashboard propagates impairment.
func (d *Dashboard) CascadeEnabled() bool {
	return d.cascadeEnabled
}

// WatchComponent adds a component to the watch set, seeding its history with
// the current (or UNKNOWN) state. The optional listener fires on every
// subsequent update of this component.
func (d *Dashboard) WatchComponent(id string, listener StatusListener) {
	d.mu.Lock()
	d.watched[id] = true
	if listener != nil {
		d.watchListeners[id] = append(d.watchListeners[id], listener)
	}
	d.mu.Unlock()

	// Seed history. The empty state resolves through provider/fallback.
	if err := d.tracker.UpdateStatus(id, "", status.Force()); err != nil {
		d.logger.Warn("seeding watch history failed", "component", id, "error", err)
	}
}

// StatusFor returns the current state of a component.
func (d *Dashboard) StatusFor(id string) state.ComponentState {
	return d.tracker.GetStatus(id).State
}

// AllComponentStatuses returns every tracked status, firing per-component
// watch listeners for any component whose state changed since the last call.
func (d *Dashboard) AllComponentStatuses() map[string]state.ComponentStatus {
	statuses := d.tracker.AllStatuses()

	type pending struct {
		listeners []StatusListener
		st        state.ComponentStatus
	}
	var fire []pending

	d.mu.Lock()
	for id, st := range statuses {
		if !d.watched[id] {
			continue
		}
		if last, ok := d.lastNotified[id]; ok && last == st.State {
			continue
		}
		d.lastNotified[id] = st.State
		if ls := d.watchListeners[id]; len(ls) > 0 {
			fire = append(fire, pending{listeners: copyListeners(ls), st: st})
		}
	}
	d.mu.Unlock()

	for _, p := range fire {
		for _, listener := range p.listeners {
			listener(p.st)
		}
	}

	return statuses
}

// DependencyGraph returns a snapshot of the dependency edges.
func (d *Dashboard) DependencyGraph() map[string][]string {
	return d.graph.AllEdges()
}

// StatusHistory returns the status history of a component oldest-first.
func (d *Dashboard) StatusHistory(id string, since, until time.Time) []state.StatusRecord {
	return d.tracker.GetHistory(id, since, until)
}

// RegisterAlertCallback registers a callback fired on transitions into
// alertable states, deduplicated per component and state.
func (d *Dashboard) RegisterAlertCallback(cb AlertCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, cb)
}

// RegisterStatusListener registers a listener fired on every status update,
// in registration order, after state has been written.
func (d *Dashboard) RegisterStatusListener(listener StatusListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, listener)
}

// UpdateStatus validates and records a status update through the tracker,
// fires listeners and deduplicated alerts, and cascades impairment to
// dependents. The top-level update is recorded before any cascade; cascaded
// writes are forced and carry "cascaded" and "reason" details.
func (d *Dashboard) UpdateStatus(id string, newState state.ComponentState, opts ...status.UpdateOption) error {
	if err := d.tracker.UpdateStatus(id, newState, opts...); err != nil {
		return err
	}

	written := d.tracker.GetStatus(id)
	d.notify(written)

	if d.cascadeEnabled {
		visited := map[string]bool{id: true}
		d.cascade(id, written.State, visited)
	}

	return nil
}

// cascade propagates a non-nominal state to dependents breadth-first. Only
// dependents whose current state is strictly better than the cascade state
// are updated; a worse state is never healed. The visited set guarantees
// each node is written at most once per top-level update, terminating cycles.
func (d *Dashboard) cascade(sourceID string, sourceState state.ComponentState, visited map[string]bool) {
	cascadeState, ok := state.CascadeState(sourceState)
	if !ok {
		return
	}

	type frame struct {
		source string
		st     state.ComponentState
	}
	queue := []frame{{source: sourceID, st: sourceState}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		cascadeState, ok = state.CascadeState(current.st)
		if !ok {
			continue
		}

		for _, dependent := range d.graph.DependentsOf(current.source) {
			if visited[dependent] {
				continue
			}
			visited[dependent] = true

			existing := d.tracker.GetStatus(dependent).State
			if !state.Worse(cascadeState, existing) {
				// Dependent already at or below the cascade floor.
				continue
			}

			details := map[string]any{
				"cascaded": current.source,
				"reason":   fmt.Sprintf("Depends on %s which is %s", current.source, current.st),
			}
			if err := d.tracker.UpdateStatus(dependent, cascadeState,
				status.WithDetails(details), status.Force()); err != nil {
				d.logger.Warn("cascaded update failed",
					"component", dependent,
					"source", current.source,
					"error", err,
				)
				continue
			}
			metrics.CascadeUpdatesTotal.Inc()

			d.notify(d.tracker.GetStatus(dependent))
			queue = append(queue, frame{source: dependent, st: cascadeState})
		}
	}
}

// notify fires status listeners, watch listeners, and deduplicated alert
// callbacks for a written status. Lists are copied under the lock and
// invoked outside it.
func (d *Dashboard) notify(written state.ComponentStatus) {
	d.mu.Lock()

	listeners := copyListeners(d.listeners)
	watchListeners := copyListeners(d.watchListeners[written.ComponentID])
	if d.watched[written.ComponentID] {
		d.lastNotified[written.ComponentID] = written.State
	}

	var alerts []AlertCallback
	if written.State.IsAlertable() {
		if d.lastAlerted[written.ComponentID] != written.State {
			d.lastAlerted[written.ComponentID] = written.State
			alerts = make([]AlertCallback, len(d.alerts))
			copy(alerts, d.alerts)
		}
	} else {
		delete(d.lastAlerted, written.ComponentID)
	}
	d.mu.Unlock()

	for _, listener := range listeners {
		listener(written)
	}
	for _, listener := range watchListeners {
		listener(written)
	}
	if len(alerts) > 0 {
		metrics.AlertsFiredTotal.WithLabelValues(string(written.State)).Inc()
	}
	for _, cb := range alerts {
		cb(written.ComponentID, written.State, written)
	}
}

// Remove drops all dashboard state for a component.
func (d *Dashboard) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.watched, id)
	delete(d.watchListeners, id)
	delete(d.lastAlerted, id)
	delete(d.lastNotified, id)
}

// ResetForTest wipes all dashboard state, including the tracker's.
func (d *Dashboard) ResetForTest() {
	d.mu.Lock()
	d.watched = make(map[string]bool)
	d.watchListeners = make(map[string][]StatusListener)
	d.listeners = nil
	d.alerts = nil
	d.lastAlerted = make(map[string]state.ComponentState)
	d.lastNotified = make(map[string]state.ComponentState)
	d.mu.Unlock()

	d.tracker.Reset()
}

func copyListeners(listeners []StatusListener) []StatusListener {
	if len(listeners) == 0 {
		return nil
	}
	out := make([]StatusListener, len(listeners))
	copy(out, listeners)
	return out
}
