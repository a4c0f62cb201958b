package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// FieldError is a problem with one configuration field, addressed by its
// dotted YAML path such as "proxy.listen_address".
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError collects every FieldError found in one pass so operators
// can fix a config file in a single edit.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "configuration validation failed"
	case 1:
		return "configuration validation failed: " + e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, fe := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", fe.Error())
	}
	return sb.String()
}

// problems accumulates field errors for Validate.
type problems []FieldError

func (p *problems) addf(field, format string, args ...any) {
	*p = append(*p, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// oneOf records an error unless value is among allowed.
func (p *problems) oneOf(field, what, value string, allowed ...string) {
	if slices.Contains(allowed, value) {
		return
	}
	quoted := make([]string, len(allowed))
	for i, a := range allowed {
		quoted[i] = "'" + a + "'"
	}
	p.addf(field, "invalid %s %q: must be one of %s", what, value, strings.Join(quoted, ", "))
}

// Validate checks cfg and returns a ValidationError listing every invalid
// field, or nil.
func Validate(cfg *Config) error {
	var p problems

	p.proxy(&cfg.Proxy)
	p.upstream(&cfg.Upstream)
	p.keys(&cfg.Keys)
	p.telemetry(&cfg.Telemetry)
	p.security(&cfg.Security)

	if len(p) > 0 {
		return ValidationError{Errors: p}
	}
	return nil
}

func (p *problems) proxy(cfg *ProxyConfig) {
	if cfg.ListenAddress == "" {
		p.addf("proxy.listen_address", "listen address is required")
	}

	for _, d := range []struct {
		field string
		value time.Duration
	}{
		{"proxy.read_timeout", cfg.ReadTimeout},
		{"proxy.write_timeout", cfg.WriteTimeout},
		{"proxy.idle_timeout", cfg.IdleTimeout},
		{"proxy.shutdown_timeout", cfg.ShutdownTimeout},
		{"proxy.admin_timeout", cfg.AdminTimeout},
	} {
		if d.value < 0 {
			p.addf(d.field, "must not be negative")
		}
	}

	switch {
	case cfg.MaxHeaderBytes < 0:
		p.addf("proxy.max_header_bytes", "max header bytes must be non-negative")
	case cfg.MaxHeaderBytes > 10<<20:
		p.addf("proxy.max_header_bytes", "max header bytes exceeds reasonable limit (10MB)")
	}

	if cfg.MaxConcurrentRequests < 0 {
		p.addf("proxy.max_concurrent_requests", "max concurrent requests must be non-negative")
	}
}

func (p *problems) upstream(cfg *UpstreamConfig) {
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		switch {
		case err != nil || u.Host == "":
			p.addf("upstream.base_url", "invalid URL %q", cfg.BaseURL)
		case u.Scheme != "http" && u.Scheme != "https":
			p.addf("upstream.base_url", "unsupported scheme %q: must be 'http' or 'https'", u.Scheme)
		}
	}

	if cfg.Timeout < 0 {
		p.addf("upstream.timeout", "must not be negative")
	}
	if cfg.MaxRetries < 0 {
		p.addf("upstream.max_retries", "max retries must be non-negative")
	}
}

func (p *problems) keys(cfg *KeysConfig) {
	p.oneOf("keys.backend", "backend", cfg.Backend, "file", "sqlite", "redis")

	switch cfg.Backend {
	case "file":
		if cfg.File == "" {
			p.addf("keys.file", "key file path is required for the file backend")
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			p.addf("keys.sqlite.path", "database path is required for the sqlite backend")
		}
		p.oneOf("keys.sqlite.driver", "driver", cfg.SQLite.Driver, "sqlite", "sqlite3")
	case "redis":
		if cfg.Redis.Addr == "" {
			p.addf("keys.redis.addr", "address is required for the redis backend")
		}
		if cfg.Redis.DB < 0 {
			p.addf("keys.redis.db", "db must be non-negative")
		}
	}

	if BoolValue(cfg.Refresh.Enabled, false) && strings.TrimSpace(cfg.Refresh.Schedule) == "" {
		p.addf("keys.refresh.schedule", "schedule is required when refresh is enabled")
	}
}

func (p *problems) telemetry(cfg *TelemetryConfig) {
	p.oneOf("telemetry.logging.level", "logging level", cfg.Logging.Level, "debug", "info", "warn", "error")
	p.oneOf("telemetry.logging.format", "logging format", cfg.Logging.Format, "json", "text")

	if BoolValue(cfg.Metrics.Enabled, false) && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		p.addf("telemetry.metrics.path", "metrics path must start with '/'")
	}

	t := cfg.Tracing
	if t.Enabled && t.Endpoint == "" {
		p.addf("telemetry.tracing.endpoint", "tracing endpoint is required when tracing is enabled")
	}
	p.oneOf("telemetry.tracing.sampler", "sampler", t.Sampler, "always", "never", "ratio")
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		p.addf("telemetry.tracing.sample_ratio", "sample ratio must be between 0.0 and 1.0")
	}
}

func (p *problems) security(cfg *SecurityConfig) {
	auth := cfg.Authentication
	if auth.AdminName == "" {
		p.addf("security.authentication.admin_name", "admin name is required")
	}
	for i, path := range auth.BypassPaths {
		if !strings.HasPrefix(path, "/") {
			p.addf(fmt.Sprintf("security.authentication.bypass_paths[%d]", i), "path %q must start with '/'", path)
		}
	}
}
