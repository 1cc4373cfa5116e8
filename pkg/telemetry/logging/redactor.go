package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redacted replaces masked attribute values.
const Redacted = "[REDACTED]"

// Redactor masks credentials in log attributes.
type Redactor struct {
	// keys are attribute names whose values are always masked.
	keys []string

	patterns []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a redactor with the built-in rules.
func NewRedactor() *Redactor {
	return &Redactor{
		keys: []string{"api_key", "apikey", "authorization", "password", "secret", "token"},
		patterns: []redactPattern{
			{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`), "Bearer ***"},
			{regexp.MustCompile(`\bsk-[a-zA-Z0-9]{8,}`), "sk-***"},
		},
	}
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr function.
func (r *Redactor) ReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if r.sensitiveKey(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	if a.Value.Kind() == slog.KindString {
		if s, changed := r.RedactString(a.Value.String()); changed {
			return slog.String(a.Key, s)
		}
	}
	return a
}

// RedactString masks embedded credentials and reports whether anything changed.
func (r *Redactor) RedactString(s string) (string, bool) {
	out := s
	for _, p := range r.patterns {
		out = p.regex.ReplaceAllString(out, p.replacement)
	}
	return out, out != s
}

func (r *Redactor) sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range r.keys {
		if k == s || strings.HasSuffix(k, "_"+s) {
			return true
		}
	}
	return false
}
