package config

// Config is the root configuration structure for the fabric.
type Config struct {
	LogLevel     string             `yaml:"log_level" mapstructure:"log_level"`
	LogFile      string             `yaml:"log_file" mapstructure:"log_file"`
	Daemon       DaemonConfig       `yaml:"daemon" mapstructure:"daemon"`
	Events       EventsConfig       `yaml:"events" mapstructure:"events"`
	Status       StatusConfig       `yaml:"status" mapstructure:"status"`
	Health       HealthConfig       `yaml:"health" mapstructure:"health"`
	Transactions TransactionsConfig `yaml:"transactions" mapstructure:"transactions"`
}

// DaemonConfig holds the HTTP server configuration.
type DaemonConfig struct {
	HTTPPort        int    `yaml:"http_port" mapstructure:"http_port"`
	HTTPBind        string `yaml:"http_bind" mapstructure:"http_bind"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
}

// EventsConfig holds event bus configuration.
type EventsConfig struct {
	PersistencePath string `yaml:"persistence_path" mapstructure:"persistence_path"`
	MailboxSize     int    `yaml:"mailbox_size" mapstructure:"mailbox_size"`
}

// StatusConfig holds status tracker configuration.
type StatusConfig struct {
	HistoryLimit int `yaml:"history_limit" mapstructure:"history_limit"`
}

// HealthConfig holds integration health monitor configuration.
type HealthConfig struct {
	PollingInterval int `yaml:"polling_interval" mapstructure:"polling_interval"` // seconds
}

// TransactionsConfig holds transaction logger configuration.
type TransactionsConfig struct {
	Max         int    `yaml:"max" mapstructure:"max"`
	ArchivePath string `yaml:"archive_path" mapstructure:"archive_path"` // empty disables archiving
}
