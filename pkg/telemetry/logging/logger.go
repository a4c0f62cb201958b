package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"mercator-hq/relay/pkg/config"
)

// Config selects the process logger. Level and Format accept the values
// of telemetry.logging in the config file; empty strings mean info and json.
// Writer defaults to os.Stdout.
type Config struct {
	Level         string
	Format        string
	AddSource     bool
	RedactSecrets bool
	Writer        io.Writer
}

// FromConfig converts the telemetry logging section into a Config.
func FromConfig(cfg config.LoggingConfig) Config {
	return Config{
		Level:         cfg.Level,
		Format:        cfg.Format,
		AddSource:     cfg.AddSource,
		RedactSecrets: config.BoolValue(cfg.RedactSecrets, config.DefaultLogRedactSecrets),
	}
}

// New creates a slog.Logger with the given configuration.
func New(cfg Config) (*slog.Logger, error) {
	handler, err := NewHandler(cfg)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

// NewHandler builds the handler chain: context fields, then redaction,
// then the JSON or text encoder.
func NewHandler(cfg Config) (slog.Handler, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json", "":
		h = slog.NewJSONHandler(w, opts)
	case "text", "console":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format: unknown log format: %s", cfg.Format)
	}

	if cfg.RedactSecrets {
		h = NewRedactingHandler(h, NewRedactor())
	}
	return newContextHandler(h), nil
}

// ParseLevel maps a configured level name to a slog.Level. "warning" is
// accepted for warn and an empty string means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	case "debug", "info", "warn", "error":
		var l slog.Level
		err := l.UnmarshalText([]byte(name))
		return l, err
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %s", name)
}
