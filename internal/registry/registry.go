// Package registry owns component records and their lifecycle, delegating
// edge management to the dependency graph. Registries are per-instance; a
// process-wide default exists for glue code and tests.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/edufabric/integration-fabric/internal/graph"
	"github.com/edufabric/integration-fabric/internal/metrics"
	"github.com/edufabric/integration-fabric/internal/state"
)

// ErrInvalidID is returned when a component id is empty.
var ErrInvalidID = errors.New("invalid component id")

// ErrAlreadyRegistered is returned when a component id is already registered.
var ErrAlreadyRegistered = errors.New("component already registered")

// ErrUnknownComponent is returned when an operation references an
// unregistered component id.
var ErrUnknownComponent = errors.New("unknown component")

// Registry owns Component records, preserves registration order for
// deterministic bulk operations, and maintains the dependency graph.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*Component
	order      []string
	graph      *graph.DependencyGraph
	logger     *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		components: make(map[string]*Component),
		graph:      graph.New(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RegisterOption configures a component at registration time.
type RegisterOption func(*Component)

// WithName sets the component display name. Defaults to the id.
func WithName(name string) RegisterOption {
	return func(c *Component) { c.name = name }
}

// WithDescription sets the component description.
func WithDescription(description string) RegisterOption {
	return func(c *Component) { c.description = description }
}

// WithVersion sets the component version string.
func WithVersion(version string) RegisterOption {
	return func(c *Component) { c.version = version }
}

// WithType sets the component type label.
func WithType(typ string) RegisterOption {
	return func(c *Component) { c.typ = typ }
}

// WithState sets the initial component state. Defaults to UNKNOWN.
func WithState(s state.ComponentState) RegisterOption {
	return func(c *Component) { c.st = s }
}

// WithMetadata seeds the component metadata bag.
func WithMetadata(metadata map[string]any) RegisterOption {
	return func(c *Component) {
		for k, v := range metadata {
			if c.metadata == nil {
				c.metadata = make(map[string]any)
			}
			c.metadata[k] = v
		}
	}
}

// WithImpl attaches the live implementation object. Lifecycle, status, and
// health capabilities are discovered on it by type assertion.
func WithImpl(impl any) RegisterOption {
	return func(c *Component) { c.impl = impl }
}

// Register creates and stores a component record. It fails with ErrInvalidID
// for an empty id and ErrAlreadyRegistered for a duplicate; neither mutates
// the registry.
func (r *Registry) Register(id string, opts ...RegisterOption) (*Component, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	c := &Component{
		id:   id,
		name: id,
		st:   state.StateUnknown,
	}
	for _, opt := range opts {
		opt(c)
	}

	r.components[id] = c
	r.order = append(r.order, id)
	r.graph.AddNode(id)
	metrics.ComponentsRegistered.Set(float64(len(r.components)))

	r.logger.Debug("component registered", "component", id, "state", c.st)
	return c, nil
}

// Unregister removes a component from the registry, the graph, and the
// registration order. Returns false if the id was not registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[id]; !exists {
		return false
	}

	delete(r.components, id)
	r.graph.RemoveNode(id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	metrics.ComponentsRegistered.Set(float64(len(r.components)))

	r.logger.Debug("component unregistered", "component", id)
	return true
}

// DeclareDependency records that src depends on dep. Both endpoints must be
// registered. Idempotent.
func (r *Registry) DeclareDependency(src, dep string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.components[src]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, src)
	}
	if _, ok := r.components[dep]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, dep)
	}

	r.graph.AddEdge(src, dep)
	return nil
}

// GetComponent returns the component for an id, or nil if absent.
func (r *Registry) GetComponent(id string) *Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.components[id]
}

// Has reports whether the id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.components[id]
	return ok
}

// IDs returns all component ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Components returns all components in registration order.
func (r *Registry) Components() []*Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Component, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.components[id])
	}
	return out
}

// GetDependencies returns the ids the component depends on, in declaration order.
func (r *Registry) GetDependencies(id string) []string {
	return r.graph.DependenciesOf(id)
}

// GetDependents returns the ids that depend on the component, in declaration order.
func (r *Registry) GetDependents(id string) []string {
	return r.graph.DependentsOf(id)
}

// AnalyzeImpact returns the transitive dependents of the component in
// breadth-first order.
func (r *Registry) AnalyzeImpact(id string) []string {
	return r.graph.ImpactBFS(id)
}

// Graph exposes the underlying dependency graph for read-side consumers
// (dashboard, HTTP API).
func (r *Registry) Graph() *graph.DependencyGraph {
	return r.graph
}

// InitializeAll invokes Initialize on components that implement the
// capability, in registration order. Stops at the first error.
func (r *Registry) InitializeAll(ctx context.Context) error {
	for _, c := range r.Components() {
		init, ok := c.Impl().(Initializer)
		if !ok {
			continue
		}
		if err := init.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize component %q; %w", c.ID(), err)
		}
		c.SetState(state.StateStarting)
	}
	return nil
}

// StartAll invokes Start on components that implement the capability, in
// registration order. Stops at the first error.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, c := range r.Components() {
		starter, ok := c.Impl().(Starter)
		if !ok {
			continue
		}
		if err := starter.Start(ctx); err != nil {
			return fmt.Errorf("start component %q; %w", c.ID(), err)
		}
		c.SetState(state.StateRunning)
	}
	return nil
}

// StopAll invokes Stop on components that implement the capability, in
// reverse registration order. Errors are logged and do not halt shutdown.
func (r *Registry) StopAll(ctx context.Context) {
	components := r.Components()
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		stopper, ok := c.Impl().(Stopper)
		if !ok {
			continue
		}
		c.SetState(state.StateStopping)
		if err := stopper.Stop(ctx); err != nil {
			r.logger.Warn("component stop failed", "component", c.ID(), "error", err)
		}
		c.SetState(state.StateStopped)
	}
}

// Clear wipes all registry state. Test-only.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.components = make(map[string]*Component)
	r.order = nil
	r.graph = graph.New()
	metrics.ComponentsRegistered.Set(0)
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
// Prefer explicit injection in new code; the accessor exists for glue.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultRegistry == nil {
		defaultRegistry = New()
	}
	return defaultRegistry
}

// ResetDefault discards the process-wide registry. Test-only.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = nil
}
