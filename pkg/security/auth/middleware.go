package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/telemetry/logging"
)

// Authenticator is HTTP middleware that resolves the request principal.
type Authenticator struct {
	keys   *APIKeyValidator
	jwt    *JWTValidator
	logger *slog.Logger
}

// NewAuthenticator creates the middleware. JWT validation is only enabled
// when cfg.JWT.Enabled is set.
func NewAuthenticator(cfg *config.SecurityConfig) *Authenticator {
	a := &Authenticator{
		keys:   NewAPIKeyValidator(cfg.APIKeys),
		logger: slog.Default().With("component", "auth"),
	}
	if cfg.JWT.Enabled {
		a.jwt = NewJWTValidator(cfg.JWT)
	}
	return a
}

// Authenticate returns the principal for r, nil when r carries no
// credentials.
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return a.keys.Validate(key)
	}

	value := r.Header.Get("Authorization")
	if value == "" {
		return nil, nil
	}
	scheme, credential, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		// Other schemes belong to the upstream.
		return nil, nil
	}
	credential = strings.TrimSpace(credential)

	if a.jwt != nil && looksLikeJWT(credential) {
		return a.jwt.Validate(credential)
	}
	return a.keys.Validate(credential)
}

// Handle wraps next with authentication.
func (a *Authenticator) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r)
		if err != nil {
			a.logger.WarnContext(r.Context(), "authentication failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			writeUnauthorized(w, err)
			return
		}
		if p == nil {
			next.ServeHTTP(w, r)
			return
		}

		a.logger.DebugContext(r.Context(), "request authenticated",
			"user_id", p.UserID,
			"method", p.Method,
			"premium", p.Premium,
		)

		ctx := WithPrincipal(r.Context(), p)
		ctx = logging.WithPrincipal(ctx, p.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func looksLikeJWT(s string) bool {
	return strings.Count(s, ".") == 2
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	message := "Invalid credentials"
	if errors.Is(err, ErrKeyDisabled) {
		message = "API key disabled"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="sentinel"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "Unauthorized",
		"message": message,
	})
}
