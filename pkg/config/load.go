package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. A missing file yields the defaults.
//
// The loading sequence is:
// 1. Load YAML from file (or start from defaults)
// 2. Load .env into the process environment
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
		ApplyDefaults(cfg)
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given dotenv files into the process
// environment. Variables that are already set are left untouched and missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to stat env file %q: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %q: %w", p, err)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Proxy overrides
	if val := os.Getenv("RELAY_LISTEN_ADDRESS"); val != "" {
		cfg.Proxy.ListenAddress = val
	}
	if val := os.Getenv("RELAY_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Proxy.WriteTimeout = d
		}
	}
	if val := os.Getenv("RELAY_MAX_CONCURRENT_REQUESTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Proxy.MaxConcurrentRequests = i
		}
	}

	// Upstream overrides
	if val := os.Getenv("RELAY_UPSTREAM_BASE_URL"); val != "" {
		cfg.Upstream.BaseURL = val
	}
	if val := os.Getenv("RELAY_UPSTREAM_API_KEY"); val != "" {
		cfg.Upstream.APIKey = val
	}
	if val := os.Getenv("RELAY_UPSTREAM_DEFAULT_MODEL"); val != "" {
		cfg.Upstream.DefaultModel = val
	}
	if val := os.Getenv("RELAY_MODELS_FILE"); val != "" {
		cfg.Upstream.ModelsFile = val
	}

	// Keys overrides
	if val := os.Getenv("RELAY_KEYS_BACKEND"); val != "" {
		cfg.Keys.Backend = val
	}
	if val := os.Getenv("RELAY_KEYS_FILE"); val != "" {
		cfg.Keys.File = val
	}
	if val := os.Getenv("RELAY_KEYS_SQLITE_PATH"); val != "" {
		cfg.Keys.SQLite.Path = val
	}
	if val := os.Getenv("RELAY_KEYS_REDIS_ADDR"); val != "" {
		cfg.Keys.Redis.Addr = val
	}
	if val := os.Getenv("RELAY_KEYS_REDIS_PASSWORD"); val != "" {
		cfg.Keys.Redis.Password = val
	}

	// Telemetry overrides
	if val := os.Getenv("RELAY_LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("RELAY_LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("RELAY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
		cfg.Telemetry.Tracing.Enabled = true
	}

	// Process-wide authentication flags
	if val := os.Getenv("DISABLE_AUTH"); val != "" {
		cfg.Security.Authentication.Disabled = parseFlag(val)
	}
	if val := os.Getenv("ADMIN_API_KEY"); val != "" {
		cfg.Security.Authentication.AdminKey = strings.TrimSpace(val)
	}
}

// parseFlag accepts the spellings operators commonly use for booleans.
func parseFlag(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
