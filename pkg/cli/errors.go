package cli

import (
	"errors"
	"fmt"
)

// Process exit codes returned by the relay binary.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitConfig means the configuration or a flag was rejected before any
	// work started.
	ExitConfig = 2
)

// ConfigError reports an invalid configuration value or flag. Field names
// the offending config path, file or flag.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Message
	}
	return fmt.Sprintf("invalid configuration (%s): %s", e.Field, e.Message)
}

// CommandError wraps a failure of a subcommand after configuration loaded.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewCommandError creates a CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	return ExitFailure
}
