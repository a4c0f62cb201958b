package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		extra     string
		wantValid bool
		wantField string
	}{
		{name: "valid", wantValid: true},
		{
			name:      "bad upstream url",
			extra:     "upstream:\n  base_url: ftp://example.com\n",
			wantField: "upstream.base_url",
		},
		{
			name:      "bad sampler",
			extra:     "  tracing:\n    sampler: sometimes\n",
			wantField: "telemetry.tracing.sampler",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath, _ := writeConfig(t, tt.extra)

			out, err := runRelay(t, "config", "validate", "-c", cfgPath, "-o", "json")
			if (err == nil) != tt.wantValid {
				t.Fatalf("error = %v, wantValid %v", err, tt.wantValid)
			}

			var got validationResult
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out)
			}
			if got.Valid != tt.wantValid {
				t.Errorf("valid = %v, want %v", got.Valid, tt.wantValid)
			}
			if tt.wantField == "" {
				return
			}
			found := false
			for _, fe := range got.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v do not mention %s", got.Errors, tt.wantField)
			}
		})
	}
}

func TestConfigValidateText(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")

	out, err := runRelay(t, "config", "validate", "-c", cfgPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.HasPrefix(out, "✓ ") || !strings.Contains(out, "is valid") {
		t.Errorf("output = %q", out)
	}
}
