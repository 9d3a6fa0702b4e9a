package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// initIn points the config search path at dir and initializes. State is
// reset around each call because viper is process-global.
func initIn(t *testing.T, dir string) error {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("FABRIC_CONFIG_DIR", dir)

	Reset()
	t.Cleanup(func() {
		StopSignalHandler()
		Reset()
	})
	return Init()
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestInitWithoutFileUsesDefaults(t *testing.T) {
	if err := initIn(t, t.TempDir()); err != nil {
		t.Fatalf("init: %v", err)
	}

	if ConfigFilePath() != "" {
		t.Errorf("config file path = %q, want empty", ConfigFilePath())
	}

	cfg := Current()
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("log_level = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.Daemon.HTTPPort != DefaultDaemonHTTPPort || cfg.Daemon.HTTPBind != DefaultDaemonHTTPBind {
		t.Errorf("daemon defaults = %+v", cfg.Daemon)
	}
	if cfg.Events.MailboxSize != DefaultEventsMailboxSize {
		t.Errorf("mailbox size = %d", cfg.Events.MailboxSize)
	}
	if cfg.Transactions.Max != DefaultTransactionsMax || cfg.Transactions.ArchivePath != "" {
		t.Errorf("transaction defaults = %+v", cfg.Transactions)
	}
}

func TestInitReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
log_level: debug
daemon:
  http_port: 8080
events:
  mailbox_size: 64
`)

	if err := initIn(t, dir); err != nil {
		t.Fatalf("init: %v", err)
	}

	if ConfigFilePath() != path {
		t.Errorf("config file path = %q, want %q", ConfigFilePath(), path)
	}

	cfg := Current()
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.LogLevel)
	}
	if cfg.Daemon.HTTPPort != 8080 {
		t.Errorf("http_port = %d, want 8080", cfg.Daemon.HTTPPort)
	}
	if cfg.Events.MailboxSize != 64 {
		t.Errorf("mailbox_size = %d, want 64", cfg.Events.MailboxSize)
	}
	// Untouched keys keep their defaults.
	if cfg.Status.HistoryLimit != DefaultStatusHistoryLimit {
		t.Errorf("history_limit = %d, want default", cfg.Status.HistoryLimit)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "log_level: debug\n")

	t.Setenv("FABRIC_LOG_LEVEL", "warn")
	t.Setenv("FABRIC_DAEMON_HTTP_PORT", "9100")

	if err := initIn(t, dir); err != nil {
		t.Fatalf("init: %v", err)
	}

	cfg := Current()
	if cfg.LogLevel != "warn" {
		t.Errorf("log_level = %q, want env override warn", cfg.LogLevel)
	}
	if cfg.Daemon.HTTPPort != 9100 {
		t.Errorf("http_port = %d, want env override 9100", cfg.Daemon.HTTPPort)
	}
	if GetString("log_level") != "warn" {
		t.Errorf("GetString(log_level) = %q", GetString("log_level"))
	}
}

func TestInitRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "log_level: [unclosed\n")

	if err := initIn(t, dir); err == nil {
		t.Fatal("malformed config accepted")
	}
}

func TestInitRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
log_level: loud
daemon:
  http_port: 0
`)

	err := initIn(t, dir)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("validation errors = %d, want 2: %v", len(verrs), verrs)
	}
	if !strings.Contains(err.Error(), "log_level") || !strings.Contains(err.Error(), "daemon.http_port") {
		t.Errorf("error message incomplete: %v", err)
	}
}

func TestReloadRetainsPreviousOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "log_level: debug\n")

	if err := initIn(t, dir); err != nil {
		t.Fatalf("init: %v", err)
	}

	// A reload over a now-invalid file must keep the old snapshot.
	if err := os.WriteFile(path, []byte("log_level: loud\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := Reload(); err == nil {
		t.Fatal("invalid reload accepted")
	}
	if got := Current().LogLevel; got != "debug" {
		t.Errorf("log_level after failed reload = %q, want debug", got)
	}

	// A valid rewrite takes effect.
	if err := os.WriteFile(path, []byte("log_level: error\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := Current().LogLevel; got != "error" {
		t.Errorf("log_level after reload = %q, want error", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := NewDefaultConfig()
	bad.Daemon.HTTPBind = ""
	bad.Daemon.ShutdownTimeout = 0
	bad.Events.MailboxSize = 0
	bad.Health.PollingInterval = 0
	bad.Transactions.Max = 0

	err := Validate(&bad)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}
	if len(verrs) != 5 {
		t.Errorf("validation errors = %d, want 5: %v", len(verrs), verrs)
	}
}

func TestWriteProducesLoadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := NewDefaultConfig()
	cfg.LogLevel = "debug"
	if err := Write(&cfg, path); err != nil {
		t.Fatalf("write: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.HasPrefix(string(content), "# Integration fabric configuration") {
		t.Error("generated file missing header comment")
	}

	if err := initIn(t, dir); err != nil {
		t.Fatalf("init over written file: %v", err)
	}
	if got := Current().LogLevel; got != "debug" {
		t.Errorf("log_level = %q, want debug", got)
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/fabric")

	if got := ExpandHome("~/.config/fabric/config.yaml"); got != "/home/fabric/.config/fabric/config.yaml" {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/etc/fabric.yaml"); got != "/etc/fabric.yaml" {
		t.Errorf("absolute path mutated: %q", got)
	}
}
