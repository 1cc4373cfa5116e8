package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/telemetry/logging"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testSecurityConfig() *config.SecurityConfig {
	return &config.SecurityConfig{
		APIKeys: []config.APIKeyConfig{
			{Key: "sk-basic", UserID: "alice"},
			{Key: "sk-premium", UserID: "bob", Premium: true},
			{Key: "sk-off", UserID: "carol", Disabled: true},
		},
		JWT: config.JWTConfig{
			Enabled:      true,
			Secret:       testSecret,
			Issuer:       "https://auth.example.com",
			Audience:     "sentinel",
			PremiumClaim: "premium",
		},
	}
}

func signToken(t *testing.T, secret string, build func(jwt.Token)) string {
	t.Helper()

	token := jwt.New()
	_ = token.Set(jwt.IssuerKey, "https://auth.example.com")
	_ = token.Set(jwt.AudienceKey, "sentinel")
	_ = token.Set(jwt.SubjectKey, "42")
	_ = token.Set(jwt.IssuedAtKey, time.Now())
	_ = token.Set(jwt.ExpirationKey, time.Now().Add(time.Hour))
	if build != nil {
		build(token)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte(secret)))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return string(signed)
}

// ==================================================================
// Validators
// ==================================================================

func TestAPIKeyValidator(t *testing.T) {
	v := NewAPIKeyValidator(testSecurityConfig().APIKeys)

	tests := []struct {
		name        string
		key         string
		wantUser    string
		wantPremium bool
		wantErr     error
	}{
		{"basic key", "sk-basic", "alice", false, nil},
		{"premium key", "sk-premium", "bob", true, nil},
		{"disabled key", "sk-off", "", false, ErrKeyDisabled},
		{"unknown key", "sk-nope", "", false, ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := v.Validate(tt.key)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if p.UserID != tt.wantUser || p.Premium != tt.wantPremium || p.Method != MethodAPIKey {
				t.Errorf("Expected %s premium=%v, got %+v", tt.wantUser, tt.wantPremium, p)
			}
		})
	}

	if v.Len() != 3 {
		t.Errorf("Expected 3 keys, got %d", v.Len())
	}
}

func TestJWTValidator(t *testing.T) {
	v := NewJWTValidator(testSecurityConfig().JWT)

	tests := []struct {
		name        string
		token       string
		wantPremium bool
		wantErr     bool
	}{
		{
			name:  "valid token",
			token: signToken(t, testSecret, nil),
		},
		{
			name: "premium claim",
			token: signToken(t, testSecret, func(tok jwt.Token) {
				_ = tok.Set("premium", true)
			}),
			wantPremium: true,
		},
		{
			name: "non-boolean premium claim ignored",
			token: signToken(t, testSecret, func(tok jwt.Token) {
				_ = tok.Set("premium", "yes")
			}),
		},
		{
			name:    "wrong secret",
			token:   signToken(t, "ffffffffffffffffffffffffffffffff", nil),
			wantErr: true,
		},
		{
			name: "expired",
			token: signToken(t, testSecret, func(tok jwt.Token) {
				_ = tok.Set(jwt.ExpirationKey, time.Now().Add(-time.Hour))
			}),
			wantErr: true,
		},
		{
			name: "wrong issuer",
			token: signToken(t, testSecret, func(tok jwt.Token) {
				_ = tok.Set(jwt.IssuerKey, "https://evil.example.com")
			}),
			wantErr: true,
		},
		{
			name: "wrong audience",
			token: signToken(t, testSecret, func(tok jwt.Token) {
				_ = tok.Set(jwt.AudienceKey, "other")
			}),
			wantErr: true,
		},
		{
			name: "missing subject",
			token: signToken(t, testSecret, func(tok jwt.Token) {
				_ = tok.Remove(jwt.SubjectKey)
			}),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "a.b.c",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := v.Validate(tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredentials) {
					t.Errorf("Expected ErrInvalidCredentials, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if p.UserID != "42" || p.Method != MethodJWT {
				t.Errorf("Expected user 42 via jwt, got %+v", p)
			}
			if p.Premium != tt.wantPremium {
				t.Errorf("Expected premium=%v, got %v", tt.wantPremium, p.Premium)
			}
		})
	}
}

// ==================================================================
// Middleware
// ==================================================================

func TestAuthenticator_Handle(t *testing.T) {
	authn := NewAuthenticator(testSecurityConfig())
	premiumJWT := signToken(t, testSecret, func(tok jwt.Token) {
		_ = tok.Set("premium", true)
	})

	tests := []struct {
		name        string
		headers     map[string]string
		wantCode    int
		wantUser    string
		wantPremium bool
	}{
		{
			name:     "anonymous",
			wantCode: http.StatusOK,
		},
		{
			name:     "x-api-key",
			headers:  map[string]string{"X-API-Key": "sk-basic"},
			wantCode: http.StatusOK,
			wantUser: "alice",
		},
		{
			name:        "bearer api key",
			headers:     map[string]string{"Authorization": "Bearer sk-premium"},
			wantCode:    http.StatusOK,
			wantUser:    "bob",
			wantPremium: true,
		},
		{
			name:        "bearer jwt",
			headers:     map[string]string{"Authorization": "Bearer " + premiumJWT},
			wantCode:    http.StatusOK,
			wantUser:    "42",
			wantPremium: true,
		},
		{
			name:     "basic auth passes through",
			headers:  map[string]string{"Authorization": "Basic Zm9vOmJhcg=="},
			wantCode: http.StatusOK,
		},
		{
			name:     "unknown key",
			headers:  map[string]string{"X-API-Key": "sk-nope"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "disabled key",
			headers:  map[string]string{"Authorization": "Bearer sk-off"},
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got          *Principal
				logPrincipal string
			)
			handler := authn.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = PrincipalFromContext(r.Context())
				logPrincipal = logging.GetPrincipal(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/chatbot/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d", tt.wantCode, rec.Code)
			}

			if tt.wantCode == http.StatusUnauthorized {
				var body map[string]string
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("Expected JSON body: %v", err)
				}
				if body["error"] != "Unauthorized" {
					t.Errorf("Expected Unauthorized error, got %q", body["error"])
				}
				return
			}

			if tt.wantUser == "" {
				if got != nil {
					t.Errorf("Expected no principal, got %+v", got)
				}
				return
			}
			if got == nil || got.UserID != tt.wantUser || got.Premium != tt.wantPremium {
				t.Errorf("Expected %s premium=%v, got %+v", tt.wantUser, tt.wantPremium, got)
			}
			if logPrincipal != tt.wantUser {
				t.Errorf("Expected log principal %s, got %q", tt.wantUser, logPrincipal)
			}
		})
	}
}

func TestAuthenticator_JWTDisabled(t *testing.T) {
	cfg := testSecurityConfig()
	cfg.JWT.Enabled = false
	authn := NewAuthenticator(cfg)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, nil))

	if _, err := authn.Authenticate(req); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected token to be treated as an unknown API key, got %v", err)
	}
}
