package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "empty listen address",
			mutate: func(c *Config) { c.Proxy.ListenAddress = "" },
			field:  "proxy.listen_address",
		},
		{
			name:   "negative concurrency",
			mutate: func(c *Config) { c.Proxy.MaxConcurrentRequests = -1 },
			field:  "proxy.max_concurrent_requests",
		},
		{
			name:   "bad upstream scheme",
			mutate: func(c *Config) { c.Upstream.BaseURL = "ftp://example.com" },
			field:  "upstream.base_url",
		},
		{
			name:   "unknown key backend",
			mutate: func(c *Config) { c.Keys.Backend = "etcd" },
			field:  "keys.backend",
		},
		{
			name:   "unknown sqlite driver",
			mutate: func(c *Config) { c.Keys.Backend = "sqlite"; c.Keys.SQLite.Driver = "pgx" },
			field:  "keys.sqlite.driver",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			field:  "telemetry.logging.level",
		},
		{
			name:   "tracing without endpoint",
			mutate: func(c *Config) { c.Telemetry.Tracing.Enabled = true },
			field:  "telemetry.tracing.endpoint",
		},
		{
			name:   "relative bypass path",
			mutate: func(c *Config) { c.Security.Authentication.BypassPaths = []string{"health"} },
			field:  "security.authentication.bypass_paths[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}

			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for field %q, got %v", tt.field, verr.Errors)
			}
		})
	}
}

func TestValidationError_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Proxy.ListenAddress = ""
	cfg.Keys.Backend = "etcd"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "2 errors") {
		t.Errorf("expected aggregated message, got %q", err.Error())
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.Proxy.ListenAddress != "127.0.0.1:7860" {
		t.Errorf("expected default listen address, got %q", cfg.Proxy.ListenAddress)
	}
	if cfg.Proxy.MaxConcurrentRequests != 4 {
		t.Errorf("expected 4 concurrent requests, got %d", cfg.Proxy.MaxConcurrentRequests)
	}
	if cfg.Keys.Backend != "file" || cfg.Keys.File != "api_keys.txt" {
		t.Errorf("unexpected key store defaults: %+v", cfg.Keys)
	}
	if !BoolValue(cfg.Keys.Refresh.Enabled, false) {
		t.Error("expected refresh enabled by default")
	}
	if cfg.Keys.Refresh.Schedule != "@every 30s" {
		t.Errorf("expected default schedule, got %q", cfg.Keys.Refresh.Schedule)
	}
	if got := cfg.Security.Authentication.BypassPaths; len(got) != 2 || got[0] != "/" || got[1] != "/health" {
		t.Errorf("unexpected bypass paths %v", got)
	}
	if cfg.Proxy.CORS.AllowedOrigins[0] != "*" {
		t.Errorf("expected CORS to allow all origins, got %v", cfg.Proxy.CORS.AllowedOrigins)
	}
}
