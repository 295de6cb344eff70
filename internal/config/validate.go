package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Provider.validate(); err != nil {
		return err
	}

	conn := c.Connection
	if conn.StalenessInterval <= 0 {
		return errors.New("connection.staleness_interval must be > 0")
	}
	if conn.StaleAfter <= 0 {
		return errors.New("connection.stale_after must be > 0")
	}
	if conn.RefreshInterval <= 0 {
		return errors.New("connection.refresh_interval must be > 0")
	}
	if conn.HandshakeTimeout <= 0 {
		return errors.New("connection.handshake_timeout must be > 0")
	}
	if conn.PingInterval < 0 {
		return errors.New("connection.ping_interval must be >= 0")
	}
	if conn.PingInterval > 0 && conn.WriteTimeout <= 0 {
		return errors.New("connection.write_timeout must be > 0 when pings are enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (p *ProviderConfig) validate() error {
	switch {
	case p.URL == "" && p.BaseURL == "":
		return errors.New("provider.url or provider.base_url is required")
	case p.URL != "" && p.BaseURL != "":
		return errors.New("provider.url and provider.base_url are mutually exclusive")
	}

	if p.URL != "" {
		u, err := url.Parse(p.URL)
		if err != nil {
			return fmt.Errorf("provider.url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("provider.url must use ws or wss, got %q", u.Scheme)
		}
	}

	if p.MaxRetries < 0 {
		return errors.New("provider.max_retries must be >= 0")
	}
	return nil
}
