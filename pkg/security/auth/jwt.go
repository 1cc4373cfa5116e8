package auth

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"mercator-hq/sentinel/pkg/config"
)

// JWTValidator validates HS256 tokens signed with a shared secret.
type JWTValidator struct {
	secret       []byte
	issuer       string
	audience     string
	premiumClaim string
	skew         time.Duration
}

// NewJWTValidator creates a validator from configuration.
func NewJWTValidator(cfg config.JWTConfig) *JWTValidator {
	claim := cfg.PremiumClaim
	if claim == "" {
		claim = "premium"
	}
	return &JWTValidator{
		secret:       []byte(cfg.Secret),
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		premiumClaim: claim,
		skew:         30 * time.Second,
	}
}

// Validate verifies the signature, the time claims and, when configured,
// the issuer and audience. The subject becomes the principal's user id.
func (v *JWTValidator) Validate(token string) (*Principal, error) {
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.skew),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if parsed.Subject() == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidCredentials)
	}

	p := &Principal{UserID: parsed.Subject(), Method: MethodJWT}
	if raw, ok := parsed.Get(v.premiumClaim); ok {
		if premium, ok := raw.(bool); ok {
			p.Premium = premium
		}
	}
	return p, nil
}
