// Package config provides configuration management for strata.
//
// Config file locations (priority order):
//  1. $STRATA_CONFIG
//  2. ./strata.yaml
//  3. ~/.config/strata/config.yaml
//  4. /etc/strata/config.yaml
//
// Missing values are filled with defaults, so an empty file (or no file at
// all) gives a working SQLite setup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultDatabaseDriver    = DriverSQLite
	DefaultDatabaseDSN       = "./strata.db"
	DefaultServerAddr        = ":8080"
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultReconcileInterval = 30 * time.Second
	DefaultLockLease         = time.Minute
	DefaultAcquireInterval   = 500 * time.Millisecond
	DefaultCleanupInterval   = time.Minute
	DefaultLogLevel          = "info"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}
	if c.Database.DSN == "" && c.Database.Driver != DriverPostgres {
		c.Database.DSN = DefaultDatabaseDSN
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	setDefault(&c.Server.ReadTimeout, DefaultReadTimeout)
	setDefault(&c.Server.WriteTimeout, DefaultWriteTimeout)
	setDefault(&c.Reconciler.Interval, DefaultReconcileInterval)
	setDefault(&c.Locks.Lease, DefaultLockLease)
	setDefault(&c.Locks.RenewInterval, c.Locks.Lease.Duration()/2)
	setDefault(&c.Locks.AcquireInterval, DefaultAcquireInterval)
	setDefault(&c.Locks.CleanupInterval, DefaultCleanupInterval)
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = LogFormatJSON
	}
}

func setDefault(d *Duration, v time.Duration) {
	if *d <= 0 {
		*d = Duration(v)
	}
}

// Validate checks values that have no sensible default
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverSQLiteNcruces:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %s", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Log.Format {
	case LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Locks.RenewInterval >= c.Locks.Lease {
		return fmt.Errorf("locks.renew_interval (%s) must be shorter than locks.lease (%s)",
			c.Locks.RenewInterval.Duration(), c.Locks.Lease.Duration())
	}
	return nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Database: %s, Server: %s\n", c.Database.Driver, c.Server.Addr)
	summary += fmt.Sprintf("Reconciler: enabled=%t interval=%s, Lock lease: %s",
		c.Reconciler.IsEnabled(), c.Reconciler.Interval.Duration(), c.Locks.Lease.Duration())
	if c.Schema.File != "" {
		summary += fmt.Sprintf("\nSchema: %s (watch=%t)", c.Schema.File, c.Schema.Watch)
	}
	return summary
}
