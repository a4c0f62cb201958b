package config

import "time"

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress         = "127.0.0.1:7860"
	DefaultReadTimeout           = 30 * time.Second
	DefaultWriteTimeout          = 10 * time.Minute
	DefaultIdleTimeout           = 120 * time.Second
	DefaultShutdownTimeout       = 30 * time.Second
	DefaultMaxHeaderBytes        = 1048576 // 1MB
	DefaultMaxConcurrentRequests = 4
	DefaultAdminTimeout          = 30 * time.Second

	// CORS defaults
	DefaultCORSEnabled          = true
	DefaultCORSMaxAge           = 3600 // 1 hour
	DefaultCORSAllowCredentials = true

	// Upstream defaults
	DefaultUpstreamName                = "upstream"
	DefaultUpstreamTimeout             = 120 * time.Second
	DefaultUpstreamMaxRetries          = 2
	DefaultUpstreamHealthCheckInterval = 30 * time.Second
	DefaultModel                       = "gemini-1.5-pro"
	DefaultModelsFile                  = "models.json"

	// Keys defaults
	DefaultKeysBackend         = "file"
	DefaultKeysFile            = "api_keys.txt"
	DefaultKeysSQLitePath      = "data/keys.db"
	DefaultKeysSQLiteDriver    = "sqlite"
	DefaultKeysBusyTimeout     = 5 * time.Second
	DefaultKeysRedisAddr       = "localhost:6379"
	DefaultKeysRedisPrefix     = "relay"
	DefaultKeysRefreshEnabled  = true
	DefaultKeysRefreshSchedule = "@every 30s"
	DefaultKeysRefreshWatch    = true
	DefaultKeysPersistOnChange = true

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultLogRedactSecrets   = true
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "relay"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingServiceName = "relay"

	// Authentication defaults
	DefaultAdminName = "admin_key"
)

// DefaultBypassPaths are served without authentication.
var DefaultBypassPaths = []string{"/", "/health"}

// DefaultStreamDurationBuckets are histogram buckets for stream duration in seconds.
var DefaultStreamDurationBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	// Proxy defaults
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadTimeout == 0 {
		cfg.Proxy.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Proxy.WriteTimeout == 0 {
		cfg.Proxy.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Proxy.MaxConcurrentRequests == 0 {
		cfg.Proxy.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if cfg.Proxy.AdminTimeout == 0 {
		cfg.Proxy.AdminTimeout = DefaultAdminTimeout
	}
	applyCORSDefaults(cfg)

	// Upstream defaults
	if cfg.Upstream.Name == "" {
		cfg.Upstream.Name = DefaultUpstreamName
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if cfg.Upstream.MaxRetries == 0 {
		cfg.Upstream.MaxRetries = DefaultUpstreamMaxRetries
	}
	if cfg.Upstream.HealthCheckInterval == 0 {
		cfg.Upstream.HealthCheckInterval = DefaultUpstreamHealthCheckInterval
	}
	if cfg.Upstream.DefaultModel == "" {
		cfg.Upstream.DefaultModel = DefaultModel
	}
	if cfg.Upstream.ModelsFile == "" {
		cfg.Upstream.ModelsFile = DefaultModelsFile
	}

	applyKeysDefaults(cfg)

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Logging.RedactSecrets == nil {
		cfg.Telemetry.Logging.RedactSecrets = boolPtr(DefaultLogRedactSecrets)
	}
	if cfg.Telemetry.Metrics.Enabled == nil {
		cfg.Telemetry.Metrics.Enabled = boolPtr(DefaultMetricsEnabled)
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Telemetry.Metrics.StreamDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.StreamDurationBuckets = append([]float64(nil), DefaultStreamDurationBuckets...)
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}

	// Authentication defaults
	if cfg.Security.Authentication.AdminName == "" {
		cfg.Security.Authentication.AdminName = DefaultAdminName
	}
	if len(cfg.Security.Authentication.BypassPaths) == 0 {
		cfg.Security.Authentication.BypassPaths = append([]string(nil), DefaultBypassPaths...)
	}
}

// applyCORSDefaults applies CORS defaults. The relay serves browser clients
// from arbitrary origins, so everything is allowed unless configured.
func applyCORSDefaults(cfg *Config) {
	cors := &cfg.Proxy.CORS
	if len(cors.AllowedOrigins) == 0 && len(cors.AllowedMethods) == 0 && len(cors.AllowedHeaders) == 0 {
		cors.Enabled = DefaultCORSEnabled
		cors.AllowCredentials = DefaultCORSAllowCredentials
	}
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"*"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"*"}
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = []string{"X-Request-ID"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

func applyKeysDefaults(cfg *Config) {
	k := &cfg.Keys
	if k.Backend == "" {
		k.Backend = DefaultKeysBackend
	}
	if k.File == "" {
		k.File = DefaultKeysFile
	}
	if k.SQLite.Path == "" {
		k.SQLite.Path = DefaultKeysSQLitePath
	}
	if k.SQLite.Driver == "" {
		k.SQLite.Driver = DefaultKeysSQLiteDriver
	}
	if k.SQLite.BusyTimeout == 0 {
		k.SQLite.BusyTimeout = DefaultKeysBusyTimeout
	}
	if k.Redis.Addr == "" {
		k.Redis.Addr = DefaultKeysRedisAddr
	}
	if k.Redis.Prefix == "" {
		k.Redis.Prefix = DefaultKeysRedisPrefix
	}
	if k.Refresh.Enabled == nil {
		k.Refresh.Enabled = boolPtr(DefaultKeysRefreshEnabled)
	}
	if k.Refresh.Schedule == "" {
		k.Refresh.Schedule = DefaultKeysRefreshSchedule
	}
	if k.Refresh.Watch == nil {
		k.Refresh.Watch = boolPtr(DefaultKeysRefreshWatch)
	}
	if k.PersistOnChange == nil {
		k.PersistOnChange = boolPtr(DefaultKeysPersistOnChange)
	}
}

func boolPtr(b bool) *bool {
	return &b
}
