// Package config provides configuration management for the relay.
//
// This package handles loading, validating, and defaulting configuration from
// YAML files with environment variable overrides. Configuration is passed
// explicitly to the components that need it; there is no global instance.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// A missing file is not an error for LoadConfigWithEnvOverrides; defaults are
// used instead so the relay can run from environment variables alone.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention RELAY_SECTION_FIELD.
// For example:
//
//   - RELAY_LISTEN_ADDRESS overrides proxy.listen_address
//   - RELAY_UPSTREAM_BASE_URL overrides upstream.base_url
//   - RELAY_KEYS_FILE overrides keys.file
//
// Two process-wide flags are read without the prefix:
//
//   - DISABLE_AUTH turns authentication off (true, 1, yes)
//   - ADMIN_API_KEY sets the break-glass administrative secret
//
// Before overrides are applied, a .env file in the working directory is
// loaded with godotenv. Variables already present in the environment win.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. .env file (only for variables not already set)
//  4. Environment variable overrides
//  5. Validation (fails fast if invalid)
package config
