package contracts

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edufabric/integration-fabric/internal/events"
)

var dataProvider = InterfaceDescriptor{
	Name:        "DataProvider",
	Version:     "1.2.0",
	Description: "serves records by key",
	Operations: []OperationSignature{
		{Name: "Fetch", NumParams: 1, NumReturns: 2},
		{Name: "Count", NumParams: 0, NumReturns: 1},
	},
}

type goodProvider struct{}

func (goodProvider) Fetch(key string) (string, error) { return key, nil }
func (goodProvider) Count() int                       { return 0 }

type partialProvider struct{}

func (partialProvider) Fetch(key string) (string, error) { return key, nil }

type wrongShapeProvider struct{}

func (wrongShapeProvider) Fetch(key, extra string) (string, error) { return key, nil }
func (wrongShapeProvider) Count() int                              { return 0 }

func TestDescriptorValidate(t *testing.T) {
	if err := dataProvider.Validate(); err != nil {
		t.Fatalf("valid descriptor rejected: %v", err)
	}

	tests := []struct {
		name       string
		descriptor InterfaceDescriptor
		problem    string
	}{
		{
			"empty name",
			InterfaceDescriptor{Version: "1.0.0", Operations: []OperationSignature{{Name: "Op"}}},
			"name is empty",
		},
		{
			"bad version",
			InterfaceDescriptor{Name: "X", Version: "not-semver", Operations: []OperationSignature{{Name: "Op"}}},
			"invalid version",
		},
		{
			"no operations",
			InterfaceDescriptor{Name: "X", Version: "1.0.0"},
			"no operations",
		},
		{
			"unnamed operation",
			InterfaceDescriptor{Name: "X", Version: "1.0.0", Operations: []OperationSignature{{}}},
			"empty name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.descriptor.Validate()
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.problem) {
				t.Errorf("error %q does not mention %q", err, tt.problem)
			}
		})
	}
}

func TestValidateImplementation(t *testing.T) {
	if err := dataProvider.ValidateImplementation(goodProvider{}); err != nil {
		t.Fatalf("conforming implementation rejected: %v", err)
	}
	// Pointer receivers expose the same method set plus value methods.
	if err := dataProvider.ValidateImplementation(&goodProvider{}); err != nil {
		t.Fatalf("pointer to conforming implementation rejected: %v", err)
	}

	err := dataProvider.ValidateImplementation(partialProvider{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(ve.Problems) != 1 || !strings.Contains(ve.Problems[0], `missing operation "Count"`) {
		t.Errorf("problems = %v", ve.Problems)
	}

	err = dataProvider.ValidateImplementation(wrongShapeProvider{})
	if err == nil || !strings.Contains(err.Error(), "expected 1 parameters, got 2") {
		t.Errorf("arity mismatch not reported: %v", err)
	}

	if err := dataProvider.ValidateImplementation(nil); err == nil {
		t.Error("nil implementation must be rejected")
	}
}

func TestUncheckedShapes(t *testing.T) {
	loose := InterfaceDescriptor{
		Name:    "Loose",
		Version: "0.1.0",
		Operations: []OperationSignature{
			{Name: "Fetch", NumParams: -1, NumReturns: -1},
		},
	}
	if err := loose.ValidateImplementation(wrongShapeProvider{}); err != nil {
		t.Errorf("negative shape counts must skip checking: %v", err)
	}
}

func TestRegistryDeclareAndRegister(t *testing.T) {
	bus := events.NewBus()
	bus.Start()
	defer bus.Stop()

	var mu sync.Mutex
	var seen []events.Event
	bus.SubscribeFunc(func(e events.Event) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	}, &events.EventFilter{Types: []string{events.TypeInterfaceRegistered}})

	r := NewRegistry(bus)

	if err := r.RegisterImplementation("DataProvider", "memstore", goodProvider{}); err == nil {
		t.Error("registration against an undeclared interface must fail")
	}

	if err := r.Declare(dataProvider); err != nil {
		t.Fatalf("declare failed: %v", err)
	}
	if _, ok := r.Descriptor("DataProvider"); !ok {
		t.Fatal("declared descriptor not retrievable")
	}

	if err := r.RegisterImplementation("DataProvider", "memstore", goodProvider{}); err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	if err := r.RegisterImplementation("DataProvider", "sqlstore", &goodProvider{}); err != nil {
		t.Fatalf("second registration failed: %v", err)
	}

	bindings := r.Implementations("DataProvider")
	if len(bindings) != 2 {
		t.Fatalf("bindings = %d, want 2", len(bindings))
	}
	if bindings[0].Implementor != "memstore" || bindings[1].Implementor != "sqlstore" {
		t.Errorf("binding order wrong: %+v", bindings)
	}

	// A failed validation records no binding and emits no event.
	if err := r.RegisterImplementation("DataProvider", "broken", partialProvider{}); !errors.Is(err, ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
	if got := len(r.Implementations("DataProvider")); got != 2 {
		t.Errorf("failed validation recorded a binding: %d", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("interface events = %d, want 2", len(seen))
	}
	if seen[0].Data["interface_name"] != "DataProvider" || seen[0].Data["interface_version"] != "1.2.0" {
		t.Errorf("event payload = %v", seen[0].Data)
	}
}

func TestRegistryReset(t *testing.T) {
	r := NewRegistry(nil)

	if err := r.Declare(dataProvider); err != nil {
		t.Fatalf("declare failed: %v", err)
	}
	if err := r.RegisterImplementation("DataProvider", "memstore", goodProvider{}); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	r.Reset()
	if _, ok := r.Descriptor("DataProvider"); ok {
		t.Error("descriptor survived Reset")
	}
	if len(r.Implementations("DataProvider")) != 0 {
		t.Error("bindings survived Reset")
	}
}
