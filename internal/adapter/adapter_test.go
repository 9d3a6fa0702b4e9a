package adapter

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edufabric/integration-fabric/internal/dashboard"
	"github.com/edufabric/integration-fabric/internal/events"
	"github.com/edufabric/integration-fabric/internal/registry"
	"github.com/edufabric/integration-fabric/internal/state"
	"github.com/edufabric/integration-fabric/internal/status"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newFixture(t *testing.T) (*Adapter, *registry.Registry, *status.Tracker, *events.Bus) {
	t.Helper()

	reg := registry.New()
	tracker := status.NewTracker()
	dash := dashboard.New(tracker, reg.Graph())
	bus := events.NewBus()
	bus.Start()
	t.Cleanup(bus.Stop)

	return New(reg, tracker, dash, bus), reg, tracker, bus
}

func TestRegisterComponentSeedsEverything(t *testing.T) {
	a, reg, tracker, bus := newFixture(t)

	var mu sync.Mutex
	var announced []string
	bus.SubscribeFunc(func(e events.Event) {
		mu.Lock()
		announced = append(announced, e.Data["component_id"].(string))
		mu.Unlock()
	}, &events.EventFilter{Types: []string{events.TypeComponentRegistered}})

	component, err := a.RegisterComponent("db", state.StateRunning,
		map[string]any{"engine": "postgres"}, registry.WithType("storage"))
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if !reg.Has("db") {
		t.Error("component missing from registry")
	}
	if component.Type() != "storage" || component.Metadata()["engine"] != "postgres" {
		t.Errorf("registration options lost: %s %v", component.Type(), component.Metadata())
	}
	if got := tracker.GetStatus("db").State; got != state.StateRunning {
		t.Errorf("seeded tracker state = %s, want RUNNING", got)
	}

	changes := a.ChangeHistory("db")
	if len(changes) != 1 || changes[0].To != state.StateRunning || !changes[0].Forced {
		t.Errorf("change history = %+v, want one forced record to RUNNING", changes)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(announced) == 1 && announced[0] == "db"
	}, "registration event not published")
}

func TestRegisterComponentEmptyStateDefaultsToUnknown(t *testing.T) {
	a, _, tracker, _ := newFixture(t)

	if _, err := a.RegisterComponent("api", "", nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if got := tracker.GetStatus("api").State; got != state.StateUnknown {
		t.Errorf("seeded state = %s, want UNKNOWN", got)
	}
}

func TestUpdateComponentStatusRequiresRegistration(t *testing.T) {
	a, _, _, _ := newFixture(t)

	err := a.UpdateComponentStatus("ghost", state.StateRunning)
	if !errors.Is(err, registry.ErrUnknownComponent) {
		t.Errorf("error = %v, want ErrUnknownComponent", err)
	}
}

func TestUpdateComponentStatusSyncsRecordAndPublishes(t *testing.T) {
	a, reg, tracker, bus := newFixture(t)

	var mu sync.Mutex
	var seen []events.Event
	bus.SubscribeFunc(func(e events.Event) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	}, &events.EventFilter{Types: []string{events.TypeStatusChanged}})

	if _, err := a.RegisterComponent("db", state.StateRunning, nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := a.UpdateComponentStatus("db", state.StateDegraded); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if got := tracker.GetStatus("db").State; got != state.StateDegraded {
		t.Errorf("tracker state = %s, want DEGRADED", got)
	}
	// The live registry record follows the tracker.
	if got := reg.GetComponent("db").State(); got != state.StateDegraded {
		t.Errorf("component state = %s, want DEGRADED", got)
	}

	changes := a.ChangeHistory("db")
	last := changes[len(changes)-1]
	if last.From != state.StateRunning || last.To != state.StateDegraded {
		t.Errorf("change record = %+v, want RUNNING -> DEGRADED", last)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, "status event not published")

	mu.Lock()
	defer mu.Unlock()
	if seen[0].Data["state"] != string(state.StateDegraded) {
		t.Errorf("event payload = %v", seen[0].Data)
	}
}

func TestUpdateComponentStatusRejectsIllegalTransition(t *testing.T) {
	a, reg, _, _ := newFixture(t)

	if _, err := a.RegisterComponent("db", state.StateDegraded, nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	err := a.UpdateComponentStatus("db", state.StateHealthy)
	if !errors.Is(err, status.ErrIllegalTransition) {
		t.Fatalf("error = %v, want ErrIllegalTransition", err)
	}
	if got := reg.GetComponent("db").State(); got != state.StateDegraded {
		t.Errorf("component state mutated by rejected update: %s", got)
	}
	if changes := a.ChangeHistory("db"); len(changes) != 1 {
		t.Errorf("rejected update recorded a change: %+v", changes)
	}
}

func TestUpdateCascadesThroughDependents(t *testing.T) {
	a, reg, tracker, _ := newFixture(t)

	for _, id := range []string{"db", "api"} {
		if _, err := a.RegisterComponent(id, state.StateRunning, nil); err != nil {
			t.Fatalf("register %s failed: %v", id, err)
		}
	}
	if err := reg.DeclareDependency("api", "db"); err != nil {
		t.Fatalf("declare failed: %v", err)
	}

	if err := a.UpdateComponentStatus("db", state.StateDown); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if got := tracker.GetStatus("api").State; got != state.StateImpaired {
		t.Errorf("dependent state = %s, want IMPAIRED", got)
	}
}

func TestEmptyStatePollsProvider(t *testing.T) {
	a, reg, tracker, _ := newFixture(t)

	component, err := a.RegisterComponent("db", state.StateRunning, nil)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// The bound provider reads the live component record.
	component.SetState(state.StateDegraded)
	if err := a.UpdateComponentStatus("db", ""); err != nil {
		t.Fatalf("polled update failed: %v", err)
	}
	if got := tracker.GetStatus("db").State; got != state.StateDegraded {
		t.Errorf("polled state = %s, want DEGRADED", got)
	}
	_ = reg
}

func TestUnregisterComponentDropsAllState(t *testing.T) {
	a, reg, tracker, _ := newFixture(t)

	if _, err := a.RegisterComponent("db", state.StateRunning, nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if !a.UnregisterComponent("db") {
		t.Fatal("unregister failed")
	}
	if reg.Has("db") {
		t.Error("registry still holds the component")
	}
	if got := tracker.GetStatus("db").State; got != state.StateUnknown {
		t.Errorf("tracker state = %s, want UNKNOWN sentinel", got)
	}
	if changes := a.ChangeHistory("db"); len(changes) != 0 {
		t.Errorf("change history survived unregistration: %+v", changes)
	}

	if a.UnregisterComponent("db") {
		t.Error("unregistering an absent component should return false")
	}
}

func TestChangeHistoryIsBounded(t *testing.T) {
	a, _, _, _ := newFixture(t)

	if _, err := a.RegisterComponent("db", state.StateRunning, nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	for i := 0; i < changeHistoryLimit; i++ {
		a.UpdateComponentStatus("db", state.StateDegraded, status.Force())
		a.UpdateComponentStatus("db", state.StateRecovering, status.Force())
	}

	if got := len(a.ChangeHistory("db")); got != changeHistoryLimit {
		t.Errorf("change history length = %d, want %d", got, changeHistoryLimit)
	}
}
