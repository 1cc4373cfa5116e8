package logging

import (
	"log/slog"
	"testing"
)

func TestRedactor_ReplaceAttr(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name     string
		attr     slog.Attr
		expected string
	}{
		{"api key", slog.String("api_key", "secret-value"), Redacted},
		{"suffixed key", slog.String("jwt_secret", "x"), Redacted},
		{"authorization", slog.String("Authorization", "Basic Zm9v"), Redacted},
		{"bearer in value", slog.String("header", "Bearer abc123"), "Bearer ***"},
		{"sk key in value", slog.String("msg", "used sk-abcdefgh123"), "used sk-***"},
		{"plain", slog.String("client", "ip:10.0.0.1"), "ip:10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.ReplaceAttr(nil, tt.attr)
			if got.Value.String() != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got.Value.String())
			}
		})
	}
}

func TestRedactor_NonStringUntouched(t *testing.T) {
	r := NewRedactor()

	got := r.ReplaceAttr(nil, slog.Int("count", 5))
	if got.Value.Int64() != 5 {
		t.Errorf("Expected 5, got %v", got.Value)
	}
}
