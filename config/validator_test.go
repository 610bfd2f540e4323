package config

import (
	"strings"
	"testing"

	"deskbridge/internal/errors"
	"deskbridge/internal/ids"
)

// TestValidate_ErrorMessages verifies that Validate returns actionable
// error messages with hints.
func TestValidate_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantSub string // substring expected in error
	}{
		{
			name:    "bad listen has hint",
			cfg:     Config{Listen: "nowhere", Path: "/ipc"},
			wantSub: "hint:",
		},
		{
			name:    "public listen suggests token",
			cfg:     Config{Listen: "0.0.0.0:7377", Path: "/ipc"},
			wantSub: "set --token",
		},
		{
			name:    "unknown ids lists schemes",
			cfg:     Config{Listen: "127.0.0.1:7377", Path: "/ipc", IDScheme: "x"},
			wantSub: `"uuid"`,
		},
		{
			name:    "relative path",
			cfg:     Config{Listen: "127.0.0.1:7377", Path: "ipc"},
			wantSub: "must start with /",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}

// TestValidate_ConfigErrorField checks that failures name the flag.
func TestValidate_ConfigErrorField(t *testing.T) {
	cfg := Config{Listen: "127.0.0.1:7377", Path: "/ipc", IDScheme: ids.SchemeCounter, SocketAddr: "bad"}
	err := cfg.Validate()
	var ce *errors.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
	if ce.Field != "socket" {
		t.Errorf("Field = %q, want socket", ce.Field)
	}
}

// TestParseOrigins_EdgeCases covers origins that must be rejected.
func TestParseOrigins_EdgeCases(t *testing.T) {
	edgeCases := []string{"://", "http://", "just-text", "https://a.example/x/y", "%zz"}
	for _, s := range edgeCases {
		t.Run(s, func(t *testing.T) {
			if _, err := ParseOrigins(s); err == nil {
				t.Errorf("ParseOrigins(%q) should fail", s)
			}
		})
	}
}
