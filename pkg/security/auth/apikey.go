package auth

import (
	"fmt"

	"mercator-hq/sentinel/pkg/config"
)

type apiKey struct {
	userID  string
	premium bool
	disabled bool
}

// APIKeyValidator validates static API keys.
type APIKeyValidator struct {
	keys map[string]apiKey
}

// NewAPIKeyValidator creates a validator for the configured keys.
func NewAPIKeyValidator(keys []config.APIKeyConfig) *APIKeyValidator {
	m := make(map[string]apiKey, len(keys))
	for _, k := range keys {
		m[k.Key] = apiKey{userID: k.UserID, premium: k.Premium, disabled: k.Disabled}
	}
	return &APIKeyValidator{keys: m}
}

// Validate returns the principal for key.
func (v *APIKeyValidator) Validate(key string) (*Principal, error) {
	info, ok := v.keys[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown API key", ErrInvalidCredentials)
	}
	if info.disabled {
		return nil, ErrKeyDisabled
	}
	return &Principal{UserID: info.userID, Premium: info.premium, Method: MethodAPIKey}, nil
}

// Len returns the number of configured keys.
func (v *APIKeyValidator) Len() int {
	return len(v.keys)
}
