package auth

import (
	"context"
	"errors"
)

// Principal is an authenticated caller.
type Principal struct {
	// UserID identifies the caller; the admission layer keys counters on it.
	UserID string

	// Premium selects the premium tier policy.
	Premium bool

	// Method is "api_key" or "jwt".
	Method string
}

// Authentication methods reported in Principal.Method.
const (
	MethodAPIKey = "api_key"
	MethodJWT    = "jwt"
)

var (
	// ErrInvalidCredentials is returned for unknown keys and bad tokens.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrKeyDisabled is returned for keys that are configured but disabled.
	ErrKeyDisabled = errors.New("API key disabled")
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by the middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}
