package cli

import (
	"errors"
	"strings"
	"testing"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/limits"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		name     string
		err      *ConfigError
		expected string
	}{
		{
			name:     "with field",
			err:      &ConfigError{Field: "server.listen_address", Message: "listen address is required"},
			expected: "config error in server.listen_address: listen address is required",
		},
		{
			name:     "without field",
			err:      &ConfigError{Message: "failed to read file"},
			expected: "config error: failed to read file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.expected)
			}
		})
	}
}

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("field", "message")
	if err.Field != "field" {
		t.Errorf("Field = %q, want %q", err.Field, "field")
	}
	if err.Message != "message" {
		t.Errorf("Message = %q, want %q", err.Message, "message")
	}
}

func TestNewConfigLoadError(t *testing.T) {
	t.Run("single field", func(t *testing.T) {
		verr := config.ValidationError{Errors: []config.FieldError{
			{Field: "storage.backend", Message: "unknown backend"},
		}}
		err := NewConfigLoadError(verr)

		if err.Field != "storage.backend" || err.Message != "unknown backend" {
			t.Errorf("Unexpected error %+v", err)
		}
		if !errors.Is(err, limits.ErrConfigInvalid) {
			t.Error("Expected errors.Is(err, limits.ErrConfigInvalid)")
		}
	})

	t.Run("several fields", func(t *testing.T) {
		verr := config.ValidationError{Errors: []config.FieldError{
			{Field: "storage.backend", Message: "unknown backend"},
			{Field: "admin.path_prefix", Message: "path must start with /"},
		}}
		err := NewConfigLoadError(verr)

		if err.Field != "" {
			t.Errorf("Expected no field, got %q", err.Field)
		}
		for _, want := range []string{"2 invalid fields", "storage.backend: unknown backend", "admin.path_prefix"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("Expected %q in %q", want, err.Error())
			}
		}
	})

	t.Run("read failure", func(t *testing.T) {
		underlying := errors.New("failed to read configuration file")
		err := NewConfigLoadError(underlying)

		if err.Field != "" || err.Message != underlying.Error() {
			t.Errorf("Unexpected error %+v", err)
		}
		if !errors.Is(err, underlying) {
			t.Error("Expected the read error to be wrapped")
		}
	})
}

func TestCommandError(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := NewCommandError("run", underlyingErr)

	expected := "command run failed: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}
