// Package state defines the component state machine shared by the status
// tracker, dashboard, and adapter: the closed state set, the legal transition
// table, the severity ordering used for cascades, and the status record types.
package state

import "time"

// ComponentState represents the operational state of a registered component.
type ComponentState string

const (
	// StateUnknown is the initial state of a component before any update.
	StateUnknown ComponentState = "UNKNOWN"

	// StateStarting indicates the component is initializing.
	StateStarting ComponentState = "STARTING"

	// StateHealthy indicates nominal operation.
	StateHealthy ComponentState = "HEALTHY"

	// StateRunning indicates nominal operation. Kept distinct from HEALTHY
	// for callers that report run-state rather than health-state.
	StateRunning ComponentState = "RUNNING"

	// StateDegraded indicates the component is running with reduced capabilities.
	StateDegraded ComponentState = "DEGRADED"

	// StateDown indicates the component is unreachable or not serving.
	StateDown ComponentState = "DOWN"

	// StateFailed indicates the component has encountered a first-party error.
	StateFailed ComponentState = "FAILED"

	// StateRecovering indicates the component is returning from a bad state.
	StateRecovering ComponentState = "RECOVERING"

	// StateImpaired marks a component as non-nominal because a dependency
	// degraded or failed, distinguishing transitive from first-party failure.
	StateImpaired ComponentState = "IMPAIRED"

	// StateStopping indicates graceful shutdown is in progress.
	StateStopping ComponentState = "STOPPING"

	// StateStopped indicates the component has been intentionally stopped.
	StateStopped ComponentState = "STOPPED"

	// StateCritical is a rollup-only state produced by health threshold
	// breaches. It is never the target of a validated transition; writing it
	// requires force.
	StateCritical ComponentState = "CRITICAL"
)

// transitions is the legal transition table enforced by the status tracker.
// IMPAIRED is a cascaded state and is freely reassignable.
var transitions = map[ComponentState][]ComponentState{
	StateUnknown:    {StateHealthy, StateRunning, StateDegraded, StateDown, StateFailed},
	StateHealthy:    {StateDegraded, StateFailed},
	StateRunning:    {StateDegraded, StateFailed, StateDown},
	StateDegraded:   {StateFailed, StateRecovering},
	StateDown:       {StateRecovering},
	StateFailed:     {StateRecovering},
	StateRecovering: {StateHealthy, StateFailed},
}

// Legal reports whether a transition from one state to another is allowed
// without force. Self-transitions are allowed as no-op records.
func Legal(from, to ComponentState) bool {
	if from == to {
		return true
	}
	if from == StateImpaired {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// severity ranks states from worst to best. Lower is worse. States outside
// the table (including the zero value) rank with UNKNOWN.
var severity = map[ComponentState]int{
	StateFailed:     0,
	StateDown:       1,
	StateCritical:   2,
	StateImpaired:   3,
	StateDegraded:   4,
	StateRecovering: 5,
	StateRunning:    6,
	StateHealthy:    7,
	StateUnknown:    8,
}

// Severity returns the rank of a state in the severity ordering; lower is
// worse. Unranked states are treated as UNKNOWN.
func Severity(s ComponentState) int {
	if rank, ok := severity[s]; ok {
		return rank
	}
	return severity[StateUnknown]
}

// Worse reports whether a is strictly worse than b.
func Worse(a, b ComponentState) bool {
	return Severity(a) < Severity(b)
}

// CascadeState maps a source state to the state propagated to its dependents.
// Nominal states do not cascade and return ok=false.
func CascadeState(s ComponentState) (ComponentState, bool) {
	switch s {
	case StateDown, StateFailed, StateCritical:
		return StateImpaired, true
	case StateDegraded:
		return StateDegraded, true
	case StateImpaired:
		return StateImpaired, true
	default:
		return "", false
	}
}

// IsNominal reports whether a state represents normal operation.
func (s ComponentState) IsNominal() bool {
	return s == StateHealthy || s == StateRunning
}

// IsAlertable reports whether entering this state should fire alert callbacks.
func (s ComponentState) IsAlertable() bool {
	switch s {
	case StateDegraded, StateDown, StateFailed, StateImpaired, StateCritical:
		return true
	}
	return false
}

// IsTerminal reports whether the state ends the component lifecycle.
func (s ComponentState) IsTerminal() bool {
	return s == StateStopped
}

// ComponentStatus is the authoritative status of a component at a point in
// time. Details carries open-ended diagnostic data; stable keys are
// "cascaded", "reason", and "forced".
type ComponentStatus struct {
	ComponentID string         `json:"component_id"`
	State       ComponentState `json:"state"`
	Timestamp   time.Time      `json:"timestamp"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// StatusRecord is an immutable entry in a component's status history.
type StatusRecord struct {
	ComponentID string         `json:"component_id"`
	State       ComponentState `json:"state"`
	Timestamp   time.Time      `json:"timestamp"`
	Message     string         `json:"message,omitempty"`
	Metrics     map[string]any `json:"metrics,omitempty"`
}
