// Package config provides viper-backed configuration for the fabric with
// environment overrides, defaults, and SIGHUP hot reload.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// configFilePath stores the path to the loaded config file.
var configFilePath string

// currentMu protects current.
var currentMu sync.RWMutex

// current is the last successfully loaded typed configuration.
var current *Config

// Init initializes the configuration subsystem. It searches for
// configuration files in priority order:
//  1. Directory specified by FABRIC_CONFIG_DIR environment variable
//  2. ~/.config/fabric/
//  3. Current working directory (.)
//
// If no config file is found, defaults are used. If a config file exists but
// is invalid or unreadable, Init returns an error.
func Init() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("FABRIC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if envPath := os.Getenv("FABRIC_CONFIG_DIR"); envPath != "" {
		viper.AddConfigPath(envPath)
	}
	if home := os.Getenv("HOME"); home != "" {
		viper.AddConfigPath(filepath.Join(home, ".config", "fabric"))
	}
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file found; defaults plus env apply.
			configFilePath = ""
			return snapshot()
		}
		return fmt.Errorf("failed to read config; %w", err)
	}

	configFilePath = viper.ConfigFileUsed()
	if err := snapshot(); err != nil {
		return err
	}

	slog.Info("config initialized", "file", configFilePath)
	SetupSignalHandler()

	return nil
}

// snapshot unmarshals and validates the live viper state into current.
func snapshot() error {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config; %w", err)
	}
	if err := Validate(cfg); err != nil {
		return err
	}

	currentMu.Lock()
	current = cfg
	currentMu.Unlock()
	return nil
}

// Current returns the last successfully loaded typed configuration, or the
// defaults if Init has not run.
func Current() *Config {
	currentMu.RLock()
	defer currentMu.RUnlock()

	if current == nil {
		cfg := NewDefaultConfig()
		return &cfg
	}
	return current
}

// Reload re-reads the config file in place. On any failure the previous
// configuration is retained and the error is logged and returned.
func Reload() error {
	if configFilePath == "" {
		slog.Debug("no config file loaded; reload skipped")
		return nil
	}

	if err := viper.ReadInConfig(); err != nil {
		slog.Error("config reload failed; retaining previous config", "error", err)
		return fmt.Errorf("failed to reload config; %w", err)
	}
	if err := snapshot(); err != nil {
		slog.Error("config reload invalid; retaining previous config", "error", err)
		return err
	}

	slog.Info("config reloaded", "file", configFilePath)
	return nil
}

// ConfigFilePath returns the path to the loaded config file, or empty string
// if using defaults only.
func ConfigFilePath() string {
	return configFilePath
}

// Reset clears the configuration state for testing purposes.
func Reset() {
	viper.Reset()
	configFilePath = ""

	currentMu.Lock()
	current = nil
	currentMu.Unlock()
}

// GetString returns the string value for the given key.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns the integer value for the given key.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns the boolean value for the given key.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Set sets a value for the given key, overriding defaults and config file
// values. Primarily used for testing.
func Set(key string, value any) {
	viper.Set(key, value)
}
