// Package status owns the authoritative current status and the bounded
// append-only status history per component, validating every transition
// against the legal transition table.
package status

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edufabric/integration-fabric/internal/metrics"
	"github.com/edufabric/integration-fabric/internal/state"
)

// DefaultHistoryLimit bounds per-component history; oldest entries are
// evicted first.
const DefaultHistoryLimit = 1000

// ErrIllegalTransition is the sentinel matched by errors.Is for rejected
// transitions.
var ErrIllegalTransition = errors.New("illegal status transition")

// IllegalTransitionError reports a rejected state transition.
type IllegalTransitionError struct {
	ComponentID string
	From        state.ComponentState
	To          state.ComponentState
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition for %q: %s -> %s", e.ComponentID, e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// Provider produces the current status of a component on demand, polled by
// the tracker when an update carries no explicit state.
type Provider interface {
	ProvideStatus() state.ComponentStatus
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func() state.ComponentStatus

// ProvideStatus invokes the wrapped function.
func (f ProviderFunc) ProvideStatus() state.ComponentStatus {
	return f()
}

// FallbackFunc supplies a component state when no provider is registered,
// typically bound to the registry's live component record.
type FallbackFunc func() state.ComponentState

type entry struct {
	current state.ComponentStatus
	history []state.StatusRecord
}

// Tracker validates and records component status updates. Updates are
// linearized by the tracker's mutex; history is strictly append-only in the
// order updates complete.
type Tracker struct {
	mu           sync.RWMutex
	entries      map[string]*entry
	providers    map[string]Provider
	fallbacks    map[string]FallbackFunc
	historyLimit int
	logger       *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithHistoryLimit sets the per-component history bound.
func WithHistoryLimit(limit int) Option {
	return func(t *Tracker) {
		if limit > 0 {
			t.historyLimit = limit
		}
	}
}

// WithLogger sets the tracker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		entries:      make(map[string]*entry),
		providers:    make(map[string]Provider),
		fallbacks:    make(map[string]FallbackFunc),
		historyLimit: DefaultHistoryLimit,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// UpdateOption configures a single status update.
type UpdateOption func(*updateParams)

type updateParams struct {
	details map[string]any
	message string
	force   bool
}

// WithDetails attaches diagnostic details to the update.
func WithDetails(details map[string]any) UpdateOption {
	return func(p *updateParams) { p.details = details }
}

// WithMessage attaches a human-readable message to the update.
func WithMessage(message string) UpdateOption {
	return func(p *updateParams) { p.message = message }
}

// Force bypasses transition validation. Used for initial seeding and
// cascaded updates; forced records are flagged in their metrics bag.
func Force() UpdateOption {
	return func(p *updateParams) { p.force = true }
}

// UpdateStatus records a new status for a component. An empty newState
// consults the registered provider for the id, falling back to the
// registered fallback. Transitions are validated against the legal table
// unless forced; rejected updates return an IllegalTransitionError and leave
// state untouched.
func (t *Tracker) UpdateStatus(id string, newState state.ComponentState, opts ...UpdateOption) error {
	var p updateParams
	for _, opt := range opts {
		opt(&p)
	}

	if newState == "" {
		newState = t.resolve(id)
	}

	t.mu.Lock()

	e, ok := t.entries[id]
	if !ok {
		e = &entry{current: state.ComponentStatus{
			ComponentID: id,
			State:       state.StateUnknown,
		}}
		t.entries[id] = e
	}

	from := e.current.State
	if !p.force && !state.Legal(from, newState) {
		t.mu.Unlock()
		metrics.IllegalTransitionsTotal.Inc()
		return &IllegalTransitionError{ComponentID: id, From: from, To: newState}
	}

	now := time.Now().UTC()
	record := state.StatusRecord{
		ComponentID: id,
		State:       newState,
		Timestamp:   now,
		Message:     p.message,
	}
	if len(p.details) > 0 || p.force {
		record.Metrics = make(map[string]any, len(p.details)+1)
		for k, v := range p.details {
			record.Metrics[k] = v
		}
		if p.force {
			record.Metrics["forced"] = true
		}
	}

	e.current = state.ComponentStatus{
		ComponentID: id,
		State:       newState,
		Timestamp:   now,
		Message:     p.message,
		Details:     p.details,
	}
	e.history = append(e.history, record)
	if len(e.history) > t.historyLimit {
		e.history = e.history[len(e.history)-t.historyLimit:]
	}
	t.mu.Unlock()

	metrics.StatusTransitionsTotal.WithLabelValues(string(newState)).Inc()
	if newState.IsNominal() {
		metrics.ComponentUp.WithLabelValues(id).Set(1)
	} else {
		metrics.ComponentUp.WithLabelValues(id).Set(0)
	}

	t.logger.Debug("status updated",
		"component", id,
		"from", from,
		"to", newState,
		"forced", p.force,
	)
	return nil
}

// resolve determines the state for an update that carried none: provider
// first, then fallback, then UNKNOWN. Providers and fallbacks run outside
// the tracker lock, so they may call back into the tracker.
func (t *Tracker) resolve(id string) state.ComponentState {
	t.mu.RLock()
	provider := t.providers[id]
	fallback := t.fallbacks[id]
	t.mu.RUnlock()

	if provider != nil {
		return provider.ProvideStatus().State
	}
	if fallback != nil {
		return fallback()
	}
	return state.StateUnknown
}

// GetStatus returns the current status of a component. Absent components
// report the UNKNOWN sentinel.
func (t *Tracker) GetStatus(id string) state.ComponentStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if e, ok := t.entries[id]; ok {
		return e.current
	}
	return state.ComponentStatus{ComponentID: id, State: state.StateUnknown}
}

// GetHistory returns the status history of a component oldest-first,
// optionally restricted to [since, until]. Zero bounds are open.
func (t *Tracker) GetHistory(id string, since, until time.Time) []state.StatusRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[id]
	if !ok {
		return nil
	}

	out := make([]state.StatusRecord, 0, len(e.history))
	for _, record := range e.history {
		if !since.IsZero() && record.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && record.Timestamp.After(until) {
			continue
		}
		out = append(out, record)
	}
	return out
}

// AllStatuses returns the current status of every tracked component.
func (t *Tracker) AllStatuses() map[string]state.ComponentStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]state.ComponentStatus, len(t.entries))
	for id, e := range t.entries {
		out[id] = e.current
	}
	return out
}

// RegisterProvider attaches a status provider for a component id, replacing
// any previous provider.
func (t *Tracker) RegisterProvider(id string, provider Provider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.providers[id] = provider
}

// UnregisterProvider detaches the provider for a component id.
func (t *Tracker) UnregisterProvider(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.providers, id)
}

// SetFallback installs a state fallback consulted when no provider exists.
func (t *Tracker) SetFallback(id string, fallback FallbackFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallbacks[id] = fallback
}

// Remove drops all tracker state for a component.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
	delete(t.providers, id)
	delete(t.fallbacks, id)
}

// Reset wipes all tracker state. Test-only.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*entry)
	t.providers = make(map[string]Provider)
	t.fallbacks = make(map[string]FallbackFunc)
}
