// Package testutil provides isolated test environments for fabric tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edufabric/integration-fabric/internal/config"
)

// TestEnv provides an isolated test environment with its own config
// directory and per-test file paths.
type TestEnv struct {
	t         *testing.T
	ConfigDir string
}

// NewTestEnv creates an isolated test environment. Environment variables
// override every externalized path, so tests stay isolated even when run in
// parallel across packages. Cleanup is automatic via t.Cleanup.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	configDir := filepath.Join(t.TempDir(), "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create test config dir: %v", err)
	}

	// These env vars override viper settings via AutomaticEnv().
	t.Setenv("FABRIC_CONFIG_DIR", configDir)
	t.Setenv("FABRIC_LOG_FILE", filepath.Join(configDir, "fabric.log"))
	t.Setenv("FABRIC_EVENTS_PERSISTENCE_PATH", filepath.Join(configDir, "events.jsonl"))
	t.Setenv("FABRIC_TRANSACTIONS_ARCHIVE_PATH", filepath.Join(configDir, "transactions.db"))

	config.Reset()
	if err := config.Init(); err != nil {
		t.Fatalf("failed to initialize test config: %v", err)
	}

	t.Cleanup(func() {
		config.Reset()
	})

	return &TestEnv{
		t:         t,
		ConfigDir: configDir,
	}
}

// EventsPath returns the per-test critical event persistence path.
func (e *TestEnv) EventsPath() string {
	return filepath.Join(e.ConfigDir, "events.jsonl")
}

// ArchivePath returns the per-test transaction archive path.
func (e *TestEnv) ArchivePath() string {
	return filepath.Join(e.ConfigDir, "transactions.db")
}

// WriteFile creates a file with the given content inside the test
// environment and returns its absolute path.
func (e *TestEnv) WriteFile(name, content string) string {
	e.t.Helper()

	path := filepath.Join(e.ConfigDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		e.t.Fatalf("failed to create test file %s: %v", path, err)
	}
	return path
}
