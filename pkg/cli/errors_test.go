package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{
			name: "with field",
			err:  NewConfigError("keys.file", "path is required"),
			want: "invalid configuration (keys.file): path is required",
		},
		{
			name: "without field",
			err:  NewConfigError("", "no config"),
			want: "invalid configuration: no config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandErrorWraps(t *testing.T) {
	sentinel := errors.New("store offline")
	err := NewCommandError("keys list", fmt.Errorf("load: %w", sentinel))

	if got, want := err.Error(), "keys list: load: store offline"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should find the wrapped error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "config", err: NewConfigError("proxy", "bad"), want: ExitConfig},
		{name: "wrapped config", err: fmt.Errorf("serve: %w", NewConfigError("proxy", "bad")), want: ExitConfig},
		{name: "command", err: NewCommandError("serve", errors.New("boom")), want: ExitFailure},
		{name: "plain", err: errors.New("boom"), want: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
