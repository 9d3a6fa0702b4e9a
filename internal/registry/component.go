package registry

import (
	"context"
	"sync"

	"github.com/edufabric/integration-fabric/internal/state"
)

// Component is a registered system component. Instances are created by the
// registry and destroyed on unregistration. State is mutable; dependency
// edges live in the registry's graph.
type Component struct {
	mu sync.RWMutex

	id          string
	name        string
	description string
	version     string
	typ         string
	st          state.ComponentState
	metadata    map[string]any
	impl        any
}

// ID returns the component id.
func (c *Component) ID() string { return c.id }

// Name returns the component display name.
func (c *Component) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Description returns the component description.
func (c *Component) Description() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.description
}

// Version returns the component version string.
func (c *Component) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Type returns the component type label.
func (c *Component) Type() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.typ
}

// State returns the current component state.
func (c *Component) State() state.ComponentState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st
}

// SetState updates the component state.
func (c *Component) SetState(s state.ComponentState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st = s
}

// Metadata returns a copy of the component metadata bag.
func (c *Component) Metadata() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// SetMetadata stores a metadata value.
func (c *Component) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metadata == nil {
		c.metadata = make(map[string]any)
	}
	c.metadata[key] = value
}

// Impl returns the attached implementation object, if any. Capability
// interfaces are discovered on it by type assertion.
func (c *Component) Impl() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.impl
}

// Initializer is the optional initialization capability of a component
// implementation, invoked by InitializeAll.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Starter is the optional start capability, invoked by StartAll.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is the optional stop capability, invoked by StopAll in reverse
// registration order.
type Stopper interface {
	Stop(ctx context.Context) error
}

// StatusReporter is the optional status capability consumed by the status
// tracker's fallback path.
type StatusReporter interface {
	GetComponentState() state.ComponentState
	GetStatusDetails() map[string]any
}
