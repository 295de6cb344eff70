package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: tail-1
provider:
  base_url: https://host.example.com/api
  timeout: 5s
connection:
  stale_after: 4m
logging:
  level: debug
  format: json
metrics:
  enabled: true
  port: 9100
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "tail-1" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "tail-1")
	}
	if cfg.Provider.BaseURL != "https://host.example.com/api" {
		t.Errorf("Provider.BaseURL = %q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.Timeout != 5*time.Second {
		t.Errorf("Provider.Timeout = %v, want 5s", cfg.Provider.Timeout)
	}
	if cfg.Connection.StaleAfter != 4*time.Minute {
		t.Errorf("Connection.StaleAfter = %v, want 4m", cfg.Connection.StaleAfter)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Port != 9100 {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if cfg.Connection.StalenessInterval != 0 {
		t.Errorf("Load should not apply defaults, got %v", cfg.Connection.StalenessInterval)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_STREAM_URL", "wss://stream.example.com/ws")

	yaml := `
provider:
  url: ${TEST_STREAM_URL}
  connection_id: fixed
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider.URL != "wss://stream.example.com/ws" {
		t.Errorf("Provider.URL = %q, want expanded value", cfg.Provider.URL)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeTempFile(t, "provider: [unclosed")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "provider:\n  url: ws://localhost:8080/ws\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Provider.Timeout", cfg.Provider.Timeout, DefaultProviderTimeout},
		{"Provider.MaxRetries", cfg.Provider.MaxRetries, DefaultMaxRetries},
		{"Connection.StalenessInterval", cfg.Connection.StalenessInterval, 60 * time.Second},
		{"Connection.StaleAfter", cfg.Connection.StaleAfter, 8 * time.Minute},
		{"Connection.RefreshInterval", cfg.Connection.RefreshInterval, 114 * time.Minute},
		{"Connection.HandshakeTimeout", cfg.Connection.HandshakeTimeout, DefaultHandshakeTimeout},
		{"Connection.PingInterval", cfg.Connection.PingInterval, DefaultPingInterval},
		{"Connection.WriteTimeout", cfg.Connection.WriteTimeout, DefaultWriteTimeout},
		{"Logging.Level", cfg.Logging.Level, "info"},
		{"Logging.Format", cfg.Logging.Format, "text"},
		{"Metrics.Port", cfg.Metrics.Port, DefaultMetricsPort},
		{"Metrics.Path", cfg.Metrics.Path, "/metrics"},
		{"Profiling.AppName", cfg.Profiling.AppName, DefaultProfilingAppName},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	mc := cfg.ManagerConfig()
	if mc.StaleAfter != 8*time.Minute || mc.ResolveTimeout != DefaultProviderTimeout {
		t.Errorf("ManagerConfig() = %+v", mc)
	}
	sc := cfg.SocketConfig()
	if sc.PingInterval != DefaultPingInterval {
		t.Errorf("SocketConfig() = %+v", sc)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Provider.BaseURL = "https://host.example.com"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid base url", func(c *Config) {}, ""},
		{"valid static url", func(c *Config) {
			c.Provider.BaseURL = ""
			c.Provider.URL = "wss://stream.example.com"
		}, ""},
		{"no provider", func(c *Config) { c.Provider.BaseURL = "" }, "provider.url or provider.base_url"},
		{"both providers", func(c *Config) { c.Provider.URL = "ws://x" }, "mutually exclusive"},
		{"http static url", func(c *Config) {
			c.Provider.BaseURL = ""
			c.Provider.URL = "http://x"
		}, "ws or wss"},
		{"negative retries", func(c *Config) { c.Provider.MaxRetries = -1 }, "max_retries"},
		{"zero stale after", func(c *Config) { c.Connection.StaleAfter = 0 }, "stale_after"},
		{"negative ping", func(c *Config) { c.Connection.PingInterval = -time.Second }, "ping_interval"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad metrics port", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 70000
		}, "metrics.port"},
		{"metrics port ignored when disabled", func(c *Config) { c.Metrics.Port = 70000 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "logging:\n  level: info\n")

	_, err := LoadAndValidate(path)
	if err == nil || !strings.Contains(err.Error(), "validate config") {
		t.Errorf("LoadAndValidate() = %v, want validation error", err)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
