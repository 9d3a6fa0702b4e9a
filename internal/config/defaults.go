package config

import "github.com/spf13/viper"

// Default configuration values.
const (
	DefaultLogLevel = "info"
	DefaultLogFile  = "~/.config/fabric/fabric.log"

	DefaultDaemonHTTPPort        = 7700
	DefaultDaemonHTTPBind        = "127.0.0.1"
	DefaultDaemonShutdownTimeout = 30 // seconds

	DefaultEventsPersistencePath = "~/.config/fabric/events.jsonl"
	DefaultEventsMailboxSize     = 256

	DefaultStatusHistoryLimit = 1000

	DefaultHealthPollingInterval = 60 // seconds

	DefaultTransactionsMax = 1000
)

// setDefaults registers all default configuration values with viper.
// Called during Init() before reading config files.
func setDefaults() {
	viper.SetDefault("log_level", DefaultLogLevel)
	viper.SetDefault("log_file", DefaultLogFile)

	viper.SetDefault("daemon.http_port", DefaultDaemonHTTPPort)
	viper.SetDefault("daemon.http_bind", DefaultDaemonHTTPBind)
	viper.SetDefault("daemon.shutdown_timeout", DefaultDaemonShutdownTimeout)

	viper.SetDefault("events.persistence_path", DefaultEventsPersistencePath)
	viper.SetDefault("events.mailbox_size", DefaultEventsMailboxSize)

	viper.SetDefault("status.history_limit", DefaultStatusHistoryLimit)

	viper.SetDefault("health.polling_interval", DefaultHealthPollingInterval)

	viper.SetDefault("transactions.max", DefaultTransactionsMax)
	viper.SetDefault("transactions.archive_path", "")
}

// NewDefaultConfig returns a Config populated with the default values.
func NewDefaultConfig() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		LogFile:  DefaultLogFile,
		Daemon: DaemonConfig{
			HTTPPort:        DefaultDaemonHTTPPort,
			HTTPBind:        DefaultDaemonHTTPBind,
			ShutdownTimeout: DefaultDaemonShutdownTimeout,
		},
		Events: EventsConfig{
			PersistencePath: DefaultEventsPersistencePath,
			MailboxSize:     DefaultEventsMailboxSize,
		},
		Status: StatusConfig{
			HistoryLimit: DefaultStatusHistoryLimit,
		},
		Health: HealthConfig{
			PollingInterval: DefaultHealthPollingInterval,
		},
		Transactions: TransactionsConfig{
			Max: DefaultTransactionsMax,
		},
	}
}
