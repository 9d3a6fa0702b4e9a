package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a config validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation failures.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("config validation failed:\n")
	for _, err := range e {
		b.WriteString("  - ")
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	return b.String()
}

// validLogLevels lists recognized log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for errors.
// Returns ValidationErrors if validation fails.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error; got %q", cfg.LogLevel),
		})
	}

	if cfg.Daemon.HTTPPort < 1 || cfg.Daemon.HTTPPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "daemon.http_port",
			Message: fmt.Sprintf("must be between 1 and 65535, got %d", cfg.Daemon.HTTPPort),
		})
	}

	if cfg.Daemon.HTTPBind == "" {
		errs = append(errs, ValidationError{
			Field:   "daemon.http_bind",
			Message: "must not be empty",
		})
	}

	if cfg.Daemon.ShutdownTimeout < 1 {
		errs = append(errs, ValidationError{
			Field:   "daemon.shutdown_timeout",
			Message: fmt.Sprintf("must be at least 1 second, got %d", cfg.Daemon.ShutdownTimeout),
		})
	}

	if cfg.Events.MailboxSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "events.mailbox_size",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Events.MailboxSize),
		})
	}

	if cfg.Status.HistoryLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "status.history_limit",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Status.HistoryLimit),
		})
	}

	if cfg.Health.PollingInterval < 1 {
		errs = append(errs, ValidationError{
			Field:   "health.polling_interval",
			Message: fmt.Sprintf("must be at least 1 second, got %d", cfg.Health.PollingInterval),
		})
	}

	if cfg.Transactions.Max < 1 {
		errs = append(errs, ValidationError{
			Field:   "transactions.max",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Transactions.Max),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
