package config

import (
	"time"
)

// Database drivers
const (
	DriverSQLite        = "sqlite"
	DriverSQLiteNcruces = "sqlite-ncruces"
	DriverPostgres      = "postgres"
)

// Log formats
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Config is the root configuration structure
type Config struct {
	Version    int              `yaml:"version"`
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Locks      LocksConfig      `yaml:"locks"`
	Log        LogConfig        `yaml:"log"`
	Schema     SchemaConfig     `yaml:"schema"`
}

// DatabaseConfig selects the storage adapter
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	// DSN is a file path for the SQLite drivers and a connection string
	// for postgres
	DSN string `yaml:"dsn"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// ReconcilerConfig configures the dirty-entity reconciler
type ReconcilerConfig struct {
	Enabled  *bool    `yaml:"enabled,omitempty"` // nil = enabled
	Interval Duration `yaml:"interval"`
}

// IsEnabled reports whether the reconciler runs
func (r ReconcilerConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// LocksConfig configures advisory locks
type LocksConfig struct {
	Lease           Duration `yaml:"lease"`
	RenewInterval   Duration `yaml:"renew_interval"`
	AcquireInterval Duration `yaml:"acquire_interval"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchemaConfig names a schema file applied at startup
type SchemaConfig struct {
	File  string `yaml:"file,omitempty"`
	Watch bool   `yaml:"watch,omitempty"` // re-apply the file when it changes
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
