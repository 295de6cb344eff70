package config

import (
	"time"

	"github.com/rickgao/eventstream/internal/connection"
)

// Config is the root configuration for a stream client.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Provider   ProviderConfig   `yaml:"provider"`
	Connection ConnectionConfig `yaml:"connection"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Profiling  ProfilingConfig  `yaml:"profiling"`
}

// InstanceConfig identifies this client. An empty ID is generated.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ProviderConfig selects where connection info comes from: a fixed URL, or
// the host's connection-info endpoint under BaseURL.
type ProviderConfig struct {
	URL          string        `yaml:"url"`
	ConnectionID string        `yaml:"connection_id"` // Only with url
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// ConnectionConfig holds connection manager and socket settings.
type ConnectionConfig struct {
	StalenessInterval time.Duration `yaml:"staleness_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// LoggingConfig controls the slog handler. An empty File logs to stdout.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// ProfilingConfig enables continuous profiling when ServerAddress is set.
type ProfilingConfig struct {
	ServerAddress string `yaml:"server_address"`
	AppName       string `yaml:"app_name"`
}

// ManagerConfig returns the connection manager settings.
func (c *Config) ManagerConfig() connection.ManagerConfig {
	return connection.ManagerConfig{
		StalenessInterval: c.Connection.StalenessInterval,
		StaleAfter:        c.Connection.StaleAfter,
		RefreshInterval:   c.Connection.RefreshInterval,
		ResolveTimeout:    c.Provider.Timeout,
	}
}

// SocketConfig returns the socket dialer settings.
func (c *Config) SocketConfig() connection.SocketConfig {
	return connection.SocketConfig{
		HandshakeTimeout: c.Connection.HandshakeTimeout,
		PingInterval:     c.Connection.PingInterval,
		WriteTimeout:     c.Connection.WriteTimeout,
	}
}
