package config

import "time"

// Config is the root configuration for the relay.
type Config struct {
	Proxy     ProxyConfig     `yaml:"proxy"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Keys      KeysConfig      `yaml:"keys"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Security  SecurityConfig  `yaml:"security"`
}

// ProxyConfig contains configuration for the HTTP server.
type ProxyConfig struct {
	// ListenAddress is the address and port for the relay to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:7860", "0.0.0.0:7860").
	// Default: "127.0.0.1:7860"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streams are bounded by this value, so it is set generously.
	// Default: 10m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxConcurrentRequests bounds simultaneous upstream calls.
	// Zero disables the limit.
	// Default: 4
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`

	// AdminTimeout bounds each administrative request.
	// Default: 30s
	AdminTimeout time.Duration `yaml:"admin_timeout"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin access for browser clients. A "*"
// entry in AllowedOrigins matches any origin; the request origin is
// echoed back rather than the wildcard so credentials keep working.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`           // default true
	AllowedOrigins   []string `yaml:"allowed_origins"`   // default ["*"]
	AllowedMethods   []string `yaml:"allowed_methods"`   // default ["*"]
	AllowedHeaders   []string `yaml:"allowed_headers"`   // default ["*"]
	ExposedHeaders   []string `yaml:"exposed_headers"`   // default ["X-Request-ID"]
	MaxAge           int      `yaml:"max_age"`           // preflight cache, seconds
	AllowCredentials bool     `yaml:"allow_credentials"` // default true
}

// UpstreamConfig contains configuration for the upstream model backend.
// The backend must speak the OpenAI chat completions protocol.
type UpstreamConfig struct {
	// Name identifies the upstream in logs and errors.
	// Default: "upstream"
	Name string `yaml:"name"`

	// BaseURL is the base URL for the backend API.
	// Example: "https://generativelanguage.googleapis.com/v1beta/openai"
	BaseURL string `yaml:"base_url"`

	// APIKey is the credential the relay presents to the backend.
	APIKey string `yaml:"api_key"`

	// Timeout is the maximum duration for a non-streaming upstream request.
	// Default: 120s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the maximum number of retry attempts for failed requests.
	// Default: 2
	MaxRetries int `yaml:"max_retries"`

	// HealthCheckInterval is how often the upstream is probed for /ready.
	// A negative value disables probing.
	// Default: 30s
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// DefaultModel is used when a request does not name a model.
	// Default: "gemini-1.5-pro"
	DefaultModel string `yaml:"default_model"`

	// ModelsFile lists the models advertised on /v1/models.
	// Format: {"models": ["model-a", "model-b"]}
	// Default: "models.json"
	ModelsFile string `yaml:"models_file"`
}

// KeysConfig contains configuration for the API key registry.
type KeysConfig struct {
	// Backend selects the key store.
	// Options: "file", "sqlite", "redis"
	// Default: "file"
	Backend string `yaml:"backend"`

	// File is the path to the line-oriented key file when Backend is "file".
	// Default: "api_keys.txt"
	File string `yaml:"file"`

	// SQLite contains SQL store configuration when Backend is "sqlite".
	SQLite SQLiteKeysConfig `yaml:"sqlite"`

	// Redis contains Redis store configuration when Backend is "redis".
	Redis RedisKeysConfig `yaml:"redis"`

	// Refresh controls background reloading of the key store.
	Refresh RefreshConfig `yaml:"refresh"`

	// PersistOnChange writes the registry back to its store after every
	// administrative mutation.
	// Default: true
	PersistOnChange *bool `yaml:"persist_on_change"`
}

// SQLiteKeysConfig configures the SQL key store.
type SQLiteKeysConfig struct {
	// Path is the database file path.
	// Default: "data/keys.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver.
	// Options: "sqlite" (modernc.org/sqlite, pure Go), "sqlite3" (mattn/go-sqlite3, cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RedisKeysConfig configures the Redis key store.
type RedisKeysConfig struct {
	// Addr is the Redis server address.
	// Default: "localhost:6379"
	Addr string `yaml:"addr"`

	// Password is the Redis password.
	Password string `yaml:"password"`

	// DB is the Redis logical database.
	// Default: 0
	DB int `yaml:"db"`

	// Prefix namespaces every key the store writes.
	// Default: "relay"
	Prefix string `yaml:"prefix"`
}

// RefreshConfig controls how the registry notices store changes.
type RefreshConfig struct {
	// Enabled turns background refresh on. When off, edits to the key
	// store are only seen after an explicit reload.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Schedule is a cron expression for periodic staleness checks.
	// Default: "@every 30s"
	Schedule string `yaml:"schedule"`

	// Watch additionally reacts to file system events on the key file.
	// Only used when Backend is "file".
	// Default: true
	Watch *bool `yaml:"watch"`
}

// TelemetryConfig groups the observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures the process-wide slog handler.
type LoggingConfig struct {
	Level     string `yaml:"level"`      // debug, info, warn, error
	Format    string `yaml:"format"`     // json or text
	AddSource bool   `yaml:"add_source"` // include file:line

	// RedactSecrets masks credentials in log attributes. Unset means true.
	RedactSecrets *bool `yaml:"redact_secrets"`
}

// MetricsConfig configures the Prometheus collector and its scrape path.
type MetricsConfig struct {
	Enabled   *bool  `yaml:"enabled"`   // unset means true
	Path      string `yaml:"path"`      // default "/metrics"
	Namespace string `yaml:"namespace"` // metric name prefix

	// StreamDurationBuckets are the histogram buckets, in seconds, for
	// streamed completions.
	StreamDurationBuckets []float64 `yaml:"stream_duration_buckets"`
}

// TracingConfig configures OTLP span export. Sampler is one of "always",
// "never" or "ratio"; with "ratio" SampleRatio in [0, 1] applies.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Sampler     string  `yaml:"sampler"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Endpoint    string  `yaml:"endpoint"` // OTLP gRPC, e.g. "localhost:4317"
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
}

// SecurityConfig holds the gate settings.
type SecurityConfig struct {
	Authentication AuthenticationConfig `yaml:"authentication"`
}

// AuthenticationConfig contains API key authentication configuration.
type AuthenticationConfig struct {
	// Disabled turns off authentication entirely. Every request is admitted
	// with the disabled-auth identity. Also set by DISABLE_AUTH.
	// Default: false
	Disabled bool `yaml:"disabled"`

	// AdminKey is the break-glass administrative secret. It grants admin
	// access without being present in the registry. Also set by ADMIN_API_KEY.
	AdminKey string `yaml:"admin_key"`

	// AdminName is the reserved record name that carries the admin role.
	// Default: "admin_key"
	AdminName string `yaml:"admin_name"`

	// BypassPaths are served without authentication.
	// Default: ["/", "/health"]
	BypassPaths []string `yaml:"bypass_paths"`
}

// BoolValue dereferences an optional boolean, returning def when unset.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
