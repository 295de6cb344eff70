package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultProviderTimeout   = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultStalenessInterval = 60 * time.Second
	DefaultStaleAfter        = 8 * time.Minute
	DefaultRefreshInterval   = 114 * time.Minute
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultLogMaxSizeMB      = 100
	DefaultLogMaxBackups     = 5
	DefaultLogMaxAgeDays     = 28
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultProfilingAppName  = "eventstream.streamtail"
)

func (c *Config) applyDefaults() {
	// Provider defaults
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultProviderTimeout
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = DefaultMaxRetries
	}

	// Connection defaults
	if c.Connection.StalenessInterval == 0 {
		c.Connection.StalenessInterval = DefaultStalenessInterval
	}
	if c.Connection.StaleAfter == 0 {
		c.Connection.StaleAfter = DefaultStaleAfter
	}
	if c.Connection.RefreshInterval == 0 {
		c.Connection.RefreshInterval = DefaultRefreshInterval
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Profiling.AppName == "" {
		c.Profiling.AppName = DefaultProfilingAppName
	}
}
