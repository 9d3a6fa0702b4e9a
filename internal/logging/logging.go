// Package logging owns the process logger lifecycle: a bootstrap stderr
// logger available before config loads, upgraded in place to a fanout of
// stderr text plus a rotated JSON file once config is known.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edufabric/integration-fabric/internal/config"
)

// Manager handles the bootstrap-to-full logger transition. Components obtain
// a logger via Logger(); the instance stays valid across Upgrade calls.
type Manager struct {
	handler *SwappableHandler
	logger  *slog.Logger
	level   *slog.LevelVar

	mu      sync.Mutex
	logFile *lumberjack.Logger
}

// NewManager creates a logging manager in bootstrap mode: text to stderr
// only. Call Upgrade once config is available to enable file logging.
func NewManager() *Manager {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	bootstrap := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	handler := NewSwappableHandler(bootstrap)

	return &Manager{
		handler: handler,
		logger:  slog.New(handler),
		level:   level,
	}
}

// Logger returns the process logger. Stable across Upgrade calls.
func (m *Manager) Logger() *slog.Logger {
	return m.logger
}

// Upgrade transitions from bootstrap mode to full mode: stderr text plus
// rotated JSON file. The file rotates at 20 MB keeping 5 compressed backups.
func (m *Manager) Upgrade(logFilePath string, level slog.Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logFilePath = config.ExpandHome(logFilePath)
	dir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %q; %w", dir, err)
	}

	if m.logFile != nil {
		_ = m.logFile.Close()
	}
	m.logFile = &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		Compress:   true,
	}

	m.level.Set(level)
	opts := &slog.HandlerOptions{Level: m.level}

	m.handler.Swap(slogmulti.Fanout(
		slog.NewTextHandler(os.Stderr, opts),
		slog.NewJSONHandler(m.logFile, opts),
	))

	return nil
}

// SetLevel changes the log level at runtime.
func (m *Manager) SetLevel(level slog.Level) {
	m.level.Set(level)
}

// ParseLevel maps a config log level string to a slog.Level, defaulting to
// info on unrecognized input.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Close shuts down the logger, closing the rotated file if open.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.logFile != nil {
		err := m.logFile.Close()
		m.logFile = nil
		return err
	}
	return nil
}
