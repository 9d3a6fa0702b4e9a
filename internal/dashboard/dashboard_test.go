package dashboard

import (
	"sync"
	"testing"
	"time"

	"github.com/edufabric/integration-fabric/internal/graph"
	"github.com/edufabric/integration-fabric/internal/state"
	"github.com/edufabric/integration-fabric/internal/status"
)

func zeroTime() time.Time { return time.Time{} }

// newFixture builds a dashboard over DB <- API <- UI: API depends on DB and
// UI depends on API.
func newFixture(t *testing.T, opts ...Option) (*Dashboard, *status.Tracker, *graph.DependencyGraph) {
	t.Helper()

	g := graph.New()
	for _, id := range []string{"DB", "API", "UI"} {
		g.AddNode(id)
	}
	g.AddEdge("API", "DB")
	g.AddEdge("UI", "API")

	tracker := status.NewTracker()
	return New(tracker, g, opts...), tracker, g
}

// newSoloFixture builds a dashboard over a single DB node with no edges, so
// updates never cascade anywhere.
func newSoloFixture(t *testing.T) (*Dashboard, *status.Tracker) {
	t.Helper()

	g := graph.New()
	g.AddNode("DB")
	tracker := status.NewTracker()
	return New(tracker, g), tracker
}

func seedRunning(t *testing.T, d *Dashboard, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := d.UpdateStatus(id, state.StateRunning); err != nil {
			t.Fatalf("seeding %s failed: %v", id, err)
		}
	}
}

func TestCascadingFailure(t *testing.T) {
	d, tracker, _ := newFixture(t)
	seedRunning(t, d, "DB", "API", "UI")

	type alert struct {
		id string
		st state.ComponentState
	}
	var mu sync.Mutex
	var alerts []alert
	d.RegisterAlertCallback(func(id string, st state.ComponentState, _ state.ComponentStatus) {
		mu.Lock()
		alerts = append(alerts, alert{id, st})
		mu.Unlock()
	})

	err := d.UpdateStatus("DB", state.StateDown,
		status.WithDetails(map[string]any{"reason": "conn lost"}))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if got := tracker.GetStatus("DB").State; got != state.StateDown {
		t.Errorf("DB = %s, want DOWN", got)
	}
	for _, id := range []string{"API", "UI"} {
		st := tracker.GetStatus(id)
		if st.State != state.StateImpaired {
			t.Errorf("%s = %s, want IMPAIRED", id, st.State)
		}
		if st.Details["cascaded"] == nil {
			t.Errorf("%s cascade details missing: %v", id, st.Details)
		}
	}
	// The direct dependent attributes the cascade to DB.
	if got := tracker.GetStatus("API").Details["cascaded"]; got != "DB" {
		t.Errorf("API cascaded = %v, want DB", got)
	}

	// One alert per distinct component with its new state.
	mu.Lock()
	defer mu.Unlock()
	if len(alerts) != 3 {
		t.Fatalf("alerts fired %d times, want 3: %v", len(alerts), alerts)
	}
	fired := make(map[string]state.ComponentState)
	for _, a := range alerts {
		fired[a.id] = a.st
	}
	if fired["DB"] != state.StateDown || fired["API"] != state.StateImpaired || fired["UI"] != state.StateImpaired {
		t.Errorf("alert states wrong: %v", fired)
	}
}

func TestCascadeDoesNotHealWorseDependents(t *testing.T) {
	d, tracker, _ := newFixture(t)
	seedRunning(t, d, "DB", "UI")

	// API is already FAILED, which ranks worse than IMPAIRED.
	if err := d.UpdateStatus("API", state.StateFailed, status.Force()); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if err := d.UpdateStatus("DB", state.StateDown); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if got := tracker.GetStatus("API").State; got != state.StateFailed {
		t.Errorf("API = %s, cascade must not heal a worse state", got)
	}
	// UI was visited through API regardless.
	if got := tracker.GetStatus("UI").State; got != state.StateImpaired {
		t.Errorf("UI = %s, want IMPAIRED", got)
	}
}

func TestDegradedCascadesAsDegraded(t *testing.T) {
	d, tracker, _ := newFixture(t)
	seedRunning(t, d, "DB", "API", "UI")

	if err := d.UpdateStatus("DB", state.StateDegraded); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	for _, id := range []string{"API", "UI"} {
		if got := tracker.GetStatus(id).State; got != state.StateDegraded {
			t.Errorf("%s = %s, want DEGRADED", id, got)
		}
	}
}

func TestCascadeDisabled(t *testing.T) {
	d, tracker, _ := newFixture(t, WithoutCascade())
	seedRunning(t, d, "DB", "API", "UI")

	if err := d.UpdateStatus("DB", state.StateDown); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if got := tracker.GetStatus("API").State; got != state.StateRunning {
		t.Errorf("API = %s, cascade should be disabled", got)
	}
}

func TestAlertDeduplication(t *testing.T) {
	d, _ := newSoloFixture(t)
	seedRunning(t, d, "DB")

	var mu sync.Mutex
	count := 0
	d.RegisterAlertCallback(func(string, state.ComponentState, state.ComponentStatus) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	d.UpdateStatus("DB", state.StateDegraded)
	d.UpdateStatus("DB", state.StateDegraded) // same state, deduped
	mu.Lock()
	if count != 1 {
		t.Fatalf("alerts = %d, want 1 (dedup per component+state)", count)
	}
	mu.Unlock()

	// A different alertable state fires again.
	d.UpdateStatus("DB", state.StateFailed)
	mu.Lock()
	if count != 2 {
		t.Fatalf("alerts = %d, want 2", count)
	}
	mu.Unlock()

	// Leaving and re-entering the alert set re-arms the dedup.
	d.UpdateStatus("DB", state.StateRecovering)
	d.UpdateStatus("DB", state.StateFailed)
	mu.Lock()
	if count != 3 {
		t.Fatalf("alerts = %d, want 3 after re-entry", count)
	}
	mu.Unlock()
}

func TestStatusListenerFiresOnEveryUpdate(t *testing.T) {
	d, _ := newSoloFixture(t)

	var mu sync.Mutex
	var seen []state.ComponentState
	d.RegisterStatusListener(func(st state.ComponentStatus) {
		mu.Lock()
		seen = append(seen, st.State)
		mu.Unlock()
	})

	seedRunning(t, d, "DB")
	d.UpdateStatus("DB", state.StateDegraded)
	d.UpdateStatus("DB", state.StateRecovering)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("listener fired %d times, want 3: %v", len(seen), seen)
	}
}

func TestListenerMayMutateRegistrations(t *testing.T) {
	d, _, _ := newFixture(t)

	// Registering another listener from inside a callback must not deadlock.
	d.RegisterStatusListener(func(st state.ComponentStatus) {
		d.RegisterStatusListener(func(state.ComponentStatus) {})
	})

	seedRunning(t, d, "DB")
}

func TestWatchComponentSeedsHistory(t *testing.T) {
	d, tracker, _ := newFixture(t)

	var mu sync.Mutex
	var seen []state.ComponentState
	d.WatchComponent("DB", func(st state.ComponentStatus) {
		mu.Lock()
		seen = append(seen, st.State)
		mu.Unlock()
	})

	// Watching seeds one UNKNOWN record.
	if history := d.StatusHistory("DB", zeroTime(), zeroTime()); len(history) != 1 {
		t.Fatalf("seeded history = %d records, want 1", len(history))
	}
	if got := tracker.GetStatus("DB").State; got != state.StateUnknown {
		t.Errorf("seeded state = %s, want UNKNOWN", got)
	}

	d.UpdateStatus("DB", state.StateRunning)
	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || seen[len(seen)-1] != state.StateRunning {
		t.Errorf("watch listener missed the update: %v", seen)
	}
}

func TestIllegalUpdateDoesNotCascade(t *testing.T) {
	d, tracker, _ := newFixture(t)
	seedRunning(t, d, "DB", "API", "UI")

	d.UpdateStatus("DB", state.StateDegraded)
	// DEGRADED -> HEALTHY is illegal; nothing may change anywhere.
	if err := d.UpdateStatus("DB", state.StateHealthy); err == nil {
		t.Fatal("expected illegal transition error")
	}
	if got := tracker.GetStatus("DB").State; got != state.StateDegraded {
		t.Errorf("DB = %s after rejected update", got)
	}
}
