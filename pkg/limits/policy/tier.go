package policy

import (
	"mercator-hq/sentinel/pkg/limits"
)

// Source names the rule that selected a policy.
type Source string

const (
	SourceWhitelist Source = "whitelist"
	SourceTier      Source = "tier"
	SourcePath      Source = "path"
	SourceDefault   Source = "default"
)

// Resolution is the effective policy for one request.
type Resolution struct {
	Tier limits.Tier

	// Policy is nil when Bypass is set.
	Policy *limits.Policy

	// Bypass is true for whitelisted clients.
	Bypass bool

	Source Source
}

// ResolveTier classifies a requester by authentication state.
func ResolveTier(principal string, premium bool) limits.Tier {
	switch {
	case principal == "":
		return limits.TierAnonymous
	case premium:
		return limits.TierPremium
	default:
		return limits.TierAuthenticated
	}
}

// TierForClient infers the tier implied by a client key alone. Premium
// cannot be inferred and resolves to authenticated.
func TierForClient(client limits.ClientID) limits.Tier {
	if client.IsUser() {
		return limits.TierAuthenticated
	}
	return limits.TierAnonymous
}

// Resolve applies the precedence whitelist > tier override > path prefix > default.
func (r *Registry) Resolve(path string, tier limits.Tier, whitelisted bool) Resolution {
	if whitelisted {
		return Resolution{Tier: tier, Bypass: true, Source: SourceWhitelist}
	}
	if p, ok := r.tiers[tier]; ok {
		return Resolution{Tier: tier, Policy: p, Source: SourceTier}
	}
	if p, ok := r.match(path); ok {
		return Resolution{Tier: tier, Policy: p, Source: SourcePath}
	}
	return Resolution{Tier: tier, Policy: r.def, Source: SourceDefault}
}
