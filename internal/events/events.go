// Package events provides the process-local pub/sub event bus carrying typed
// cross-component notifications, with filtered subscriptions, per-subscriber
// FIFO dispatch, and durable persistence of critical events.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Category groups event types by originating subsystem.
type Category string

const (
	// CategorySystem covers infrastructure events (status changes,
	// registrations, lifecycle).
	CategorySystem Category = "system"

	// CategoryContent covers content change events.
	CategoryContent Category = "content"

	// CategoryUser covers user-originated events.
	CategoryUser Category = "user"

	// CategoryAI covers AI provider events.
	CategoryAI Category = "ai"

	// CategoryUI covers user interface events.
	CategoryUI Category = "ui"
)

// Priority orders events by urgency. CRITICAL events are always persisted.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Well-known event types emitted by the fabric itself. Types follow the
// "category.action" convention.
const (
	// TypeStatusChanged is published on every component status update.
	TypeStatusChanged = "system.status_changed"

	// TypeComponentRegistered is published when a component joins the fabric.
	TypeComponentRegistered = "system.component_registered"

	// TypeComponentUnregistered is published when a component leaves the fabric.
	TypeComponentUnregistered = "system.component_unregistered"

	// TypeInterfaceRegistered is published for every successful interface
	// contract registration.
	TypeInterfaceRegistered = "system.interface_registered"

	// TypeContentChanged is published when managed content changes.
	TypeContentChanged = "content.changed"
)

// Event is an immutable cross-component notification. The JSON field names
// form the canonical JSON-lines persistence schema.
type Event struct {
	EventID         string         `json:"event_id"`
	Type            string         `json:"event_type"`
	Category        Category       `json:"category"`
	SourceComponent string         `json:"source_component"`
	Data            map[string]any `json:"data"`
	Priority        Priority       `json:"priority"`
	Timestamp       time.Time      `json:"timestamp"`
	IsPersistent    bool           `json:"is_persistent"`
}

// EventOption configures an event at construction time.
type EventOption func(*Event)

// WithPriority sets the event priority. Defaults to NORMAL.
func WithPriority(p Priority) EventOption {
	return func(e *Event) { e.Priority = p }
}

// WithPersistent marks the event for durable persistence.
func WithPersistent() EventOption {
	return func(e *Event) { e.IsPersistent = true }
}

// WithData sets the event data bag.
func WithData(data map[string]any) EventOption {
	return func(e *Event) { e.Data = data }
}

// New creates an event with a fresh id and the current timestamp.
func New(eventType string, category Category, source string, opts ...EventOption) Event {
	e := Event{
		EventID:         uuid.NewString(),
		Type:            eventType,
		Category:        category,
		SourceComponent: source,
		Priority:        PriorityNormal,
		Timestamp:       time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&e)
	}

	return e
}

// NewStatusChanged creates a status-change event for a component.
func NewStatusChanged(componentID, newState string, details map[string]any) Event {
	data := map[string]any{
		"component_id": componentID,
		"state":        newState,
	}
	for k, v := range details {
		data[k] = v
	}
	return New(TypeStatusChanged, CategorySystem, componentID, WithData(data))
}

// NewInterfaceRegistered creates an interface-registered event.
func NewInterfaceRegistered(interfaceName, version, implementor string) Event {
	return New(TypeInterfaceRegistered, CategorySystem, implementor, WithData(map[string]any{
		"interface_name":    interfaceName,
		"interface_version": version,
	}))
}
