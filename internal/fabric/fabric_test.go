package fabric

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edufabric/integration-fabric/internal/config"
	"github.com/edufabric/integration-fabric/internal/state"
	"github.com/edufabric/integration-fabric/internal/testutil"
	"github.com/edufabric/integration-fabric/internal/txlog"
)

func newTestFabric(t *testing.T, opts Options) *Fabric {
	t.Helper()

	if opts.PersistencePath == "" {
		opts.PersistencePath = filepath.Join(t.TempDir(), "events.jsonl")
	}
	if opts.PollingInterval == 0 {
		opts.PollingInterval = time.Hour
	}

	f, err := New(opts)
	if err != nil {
		t.Fatalf("build fabric: %v", err)
	}
	return f
}

func TestNewWiresAllPieces(t *testing.T) {
	f := newTestFabric(t, Options{})

	if f.Bus == nil || f.Registry == nil || f.Tracker == nil || f.Dashboard == nil ||
		f.Adapter == nil || f.Contracts == nil || f.Monitor == nil || f.Transactions == nil {
		t.Fatal("fabric has unwired pieces")
	}
	if f.Archive() != nil {
		t.Error("archive enabled without a path")
	}
	if f.Bus.Running() {
		t.Error("bus must start stopped")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	f := newTestFabric(t, Options{})

	f.Start(context.Background())
	if !f.Bus.Running() {
		t.Error("bus not running after Start")
	}

	f.Stop()
	if f.Bus.Running() {
		t.Error("bus still running after Stop")
	}
}

func TestAdapterCascadesOverRegistryGraph(t *testing.T) {
	f := newTestFabric(t, Options{})
	f.Start(context.Background())
	defer f.Stop()

	f.Adapter.RegisterComponent("db", state.StateRunning, nil)
	f.Adapter.RegisterComponent("api", state.StateRunning, nil)
	f.Registry.DeclareDependency("api", "db")

	if err := f.Adapter.UpdateComponentStatus("db", state.StateDown); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	// The dashboard and registry share one graph instance.
	if got := f.Tracker.GetStatus("api").State; got != state.StateImpaired {
		t.Errorf("dependent state = %s, want IMPAIRED", got)
	}
}

func TestArchiveEnabledReceivesTerminalTransactions(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "fabric", "archive.db")
	f := newTestFabric(t, Options{ArchivePath: archivePath})
	f.Start(context.Background())

	if err := f.Transactions.Run("importer", "import", func(*txlog.Scope) error {
		return nil
	}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	f.Stop()

	if _, statErr := os.Stat(archivePath); statErr != nil {
		t.Fatalf("archive file missing: %v", statErr)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	t.Setenv("HOME", "/home/fabric")

	cfg := config.NewDefaultConfig()
	cfg.Events.PersistencePath = "~/events.jsonl"
	cfg.Events.MailboxSize = 64
	cfg.Status.HistoryLimit = 50
	cfg.Health.PollingInterval = 15
	cfg.Transactions.Max = 10
	cfg.Transactions.ArchivePath = "~/archive.db"

	opts := OptionsFromConfig(&cfg)
	if opts.PersistencePath != "/home/fabric/events.jsonl" {
		t.Errorf("persistence path = %q", opts.PersistencePath)
	}
	if opts.ArchivePath != "/home/fabric/archive.db" {
		t.Errorf("archive path = %q", opts.ArchivePath)
	}
	if opts.MailboxSize != 64 || opts.HistoryLimit != 50 || opts.MaxTransactions != 10 {
		t.Errorf("options = %+v", opts)
	}
	if opts.PollingInterval != 15*time.Second {
		t.Errorf("polling interval = %v", opts.PollingInterval)
	}
}

func TestDefaultFabricSingleton(t *testing.T) {
	testutil.NewTestEnv(t)
	t.Cleanup(ResetForTest)
	ResetForTest()

	a, err := Default()
	if err != nil {
		t.Fatalf("default fabric: %v", err)
	}
	b, err := Default()
	if err != nil {
		t.Fatalf("default fabric: %v", err)
	}
	if a != b {
		t.Error("Default() must return the same instance")
	}

	ResetForTest()
	c, err := Default()
	if err != nil {
		t.Fatalf("default fabric: %v", err)
	}
	if c == a {
		t.Error("ResetForTest must discard the previous instance")
	}
}
