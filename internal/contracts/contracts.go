// Package contracts implements the interface contract system: named,
// semver-versioned interface descriptors with abstract operation signatures,
// validated against implementations by reflection.
package contracts

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	goversion "github.com/hashicorp/go-version"

	"github.com/edufabric/integration-fabric/internal/events"
)

// ErrValidation is the sentinel matched by errors.Is for failed validations.
var ErrValidation = errors.New("interface validation failed")

// ValidationError reports the individual problems found while validating an
// implementation against a descriptor.
type ValidationError struct {
	InterfaceName string
	Problems      []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("interface %q validation failed: %s",
		e.InterfaceName, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// OperationSignature describes one abstract operation of an interface.
type OperationSignature struct {
	// Name is the exported method name expected on implementations.
	Name string

	// NumParams is the expected parameter count, excluding the receiver.
	// Negative means unchecked.
	NumParams int

	// NumReturns is the expected return count. Negative means unchecked.
	NumReturns int
}

// InterfaceDescriptor names and versions an interface contract.
type InterfaceDescriptor struct {
	Name        string
	Version     string
	Description string
	Operations  []OperationSignature
}

// Validate checks the descriptor itself: non-empty name, parseable semver
// version, and at least one operation.
func (d InterfaceDescriptor) Validate() error {
	var problems []string

	if d.Name == "" {
		problems = append(problems, "interface name is empty")
	}
	if _, err := goversion.NewSemver(d.Version); err != nil {
		problems = append(problems, fmt.Sprintf("invalid version %q: %v", d.Version, err))
	}
	if len(d.Operations) == 0 {
		problems = append(problems, "descriptor declares no operations")
	}
	for _, op := range d.Operations {
		if op.Name == "" {
			problems = append(problems, "operation with empty name")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{InterfaceName: d.Name, Problems: problems}
	}
	return nil
}

// ValidateImplementation checks that the implementation exposes every
// declared operation with matching parameter and return shapes.
func (d InterfaceDescriptor) ValidateImplementation(impl any) error {
	if impl == nil {
		return &ValidationError{InterfaceName: d.Name, Problems: []string{"implementation is nil"}}
	}

	var problems []string
	implType := reflect.TypeOf(impl)

	for _, op := range d.Operations {
		method, ok := implType.MethodByName(op.Name)
		if !ok {
			problems = append(problems, fmt.Sprintf("missing operation %q", op.Name))
			continue
		}

		// NumIn counts the receiver for non-interface method sets.
		numParams := method.Type.NumIn() - 1
		if op.NumParams >= 0 && numParams != op.NumParams {
			problems = append(problems, fmt.Sprintf(
				"operation %q: expected %d parameters, got %d", op.Name, op.NumParams, numParams))
		}
		if op.NumReturns >= 0 && method.Type.NumOut() != op.NumReturns {
			problems = append(problems, fmt.Sprintf(
				"operation %q: expected %d return values, got %d", op.Name, op.NumReturns, method.Type.NumOut()))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{InterfaceName: d.Name, Problems: problems}
	}
	return nil
}

// Binding records a validated implementation of an interface.
type Binding struct {
	Descriptor  InterfaceDescriptor
	Implementor string
	Impl        any
}

// Registry stores interface descriptors and their validated implementations,
// announcing each successful registration on the event bus.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]InterfaceDescriptor
	bindings    map[string][]Binding
	bus         *events.Bus
	logger      *slog.Logger
}

// Option configures a contracts Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates a contract registry. The bus may be nil.
func NewRegistry(bus *events.Bus, opts ...Option) *Registry {
	r := &Registry{
		descriptors: make(map[string]InterfaceDescriptor),
		bindings:    make(map[string][]Binding),
		bus:         bus,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Declare stores an interface descriptor after validating it.
func (r *Registry) Declare(descriptor InterfaceDescriptor) error {
	if err := descriptor.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[descriptor.Name] = descriptor
	return nil
}

// Descriptor returns the declared descriptor for a name.
func (r *Registry) Descriptor(name string) (InterfaceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// RegisterImplementation validates impl against the named descriptor and
// records the binding. An interface-registered event is emitted on success.
func (r *Registry) RegisterImplementation(interfaceName, implementor string, impl any) error {
	r.mu.RLock()
	descriptor, ok := r.descriptors[interfaceName]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("undeclared interface %q", interfaceName)
	}

	if err := descriptor.ValidateImplementation(impl); err != nil {
		return err
	}

	r.mu.Lock()
	r.bindings[interfaceName] = append(r.bindings[interfaceName], Binding{
		Descriptor:  descriptor,
		Implementor: implementor,
		Impl:        impl,
	})
	r.mu.Unlock()

	r.logger.Info("interface implementation registered",
		"interface", interfaceName,
		"version", descriptor.Version,
		"implementor", implementor,
	)
	if r.bus != nil {
		r.bus.Publish(events.NewInterfaceRegistered(interfaceName, descriptor.Version, implementor))
	}
	return nil
}

// Implementations returns the validated bindings for an interface name.
func (r *Registry) Implementations(interfaceName string) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bindings := r.bindings[interfaceName]
	out := make([]Binding, len(bindings))
	copy(out, bindings)
	return out
}

// Reset wipes all contract state. Test-only.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = make(map[string]InterfaceDescriptor)
	r.bindings = make(map[string][]Binding)
}
