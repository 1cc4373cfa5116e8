package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/limits/policy"
)

// ErrInvalidClient is returned for an empty or malformed client key.
var ErrInvalidClient = errors.New("invalid client id")

// StatusQuery selects the policy a status is reported for. An empty Tier
// falls back to the tier implied by the client key.
type StatusQuery struct {
	Path string
	Tier limits.Tier
}

// WindowStatus is the current usage of one window.
type WindowStatus struct {
	CurrentCount  int   `json:"current_count"`
	WindowSeconds int64 `json:"window_seconds"`
}

// Status maps window names to their usage.
type Status map[string]WindowStatus

// StatusReport is a Status together with the policy it was computed for.
type StatusReport struct {
	Client limits.ClientID
	Tier   limits.Tier
	Policy string
	Source policy.Source
	Status Status
}

// ValidateClientID checks that a client key has a known prefix and a value.
func ValidateClientID(client limits.ClientID) error {
	s := string(client)
	for _, prefix := range []string{limits.UserPrefix, limits.AddressPrefix} {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w %q: must be user:<id> or ip:<address>", ErrInvalidClient, s)
}

// Status reports the client's current usage of every window in the policy
// selected by q, without counting a request. Without a path or a configured
// tier override, the policy the client has the most live counters under is
// reported; a client with no counters gets the policy covering the protected
// prefix.
func (m *Manager) Status(ctx context.Context, client limits.ClientID, q StatusQuery) (*StatusReport, error) {
	if err := ValidateClientID(client); err != nil {
		return nil, err
	}

	tier := q.Tier
	if tier == "" {
		tier = policy.TierForClient(client)
	}

	if q.Path == "" {
		if _, ok := m.registry.TierPolicy(q.Tier); !ok {
			return m.activeStatus(ctx, client, tier)
		}
	}

	res := m.registry.Resolve(q.Path, tier, false)
	results, err := m.limiter.Usage(ctx, client, res.Policy)
	if err != nil {
		return nil, err
	}
	return newStatusReport(client, res, results), nil
}

// activeStatus peeks every configured policy and keeps the busiest one.
func (m *Manager) activeStatus(ctx context.Context, client limits.ClientID, tier limits.Tier) (*StatusReport, error) {
	policies := m.registry.Policies()
	candidates := make([]policy.Resolution, 0, len(policies))
	tierPolicies := make(map[*limits.Policy]bool)
	for _, t := range limits.Tiers {
		if p, ok := m.registry.TierPolicy(t); ok {
			candidates = append(candidates, policy.Resolution{Tier: t, Policy: p, Source: policy.SourceTier})
			tierPolicies[p] = true
		}
	}
	for _, p := range policies {
		switch {
		case p == m.registry.Default():
			candidates = append(candidates, policy.Resolution{Tier: tier, Policy: p, Source: policy.SourceDefault})
		case !tierPolicies[p]:
			candidates = append(candidates, policy.Resolution{Tier: tier, Policy: p, Source: policy.SourcePath})
		}
	}

	var (
		best        *StatusReport
		bestCounted int
	)
	for _, res := range candidates {
		results, err := m.limiter.Usage(ctx, client, res.Policy)
		if err != nil {
			return nil, err
		}
		counted := 0
		for _, r := range results {
			counted += r.Count
		}
		if counted > bestCounted {
			best, bestCounted = newStatusReport(client, res, results), counted
		}
	}
	if best != nil {
		return best, nil
	}

	res := m.registry.Resolve(m.protectedPrefix, tier, false)
	results, err := m.limiter.Usage(ctx, client, res.Policy)
	if err != nil {
		return nil, err
	}
	return newStatusReport(client, res, results), nil
}

func newStatusReport(client limits.ClientID, res policy.Resolution, results []limits.WindowResult) *StatusReport {
	status := make(Status, len(results))
	for _, r := range results {
		status[r.Window.Name] = WindowStatus{
			CurrentCount:  r.Count,
			WindowSeconds: int64(r.Window.Duration.Seconds()),
		}
	}

	return &StatusReport{
		Client: client,
		Tier:   res.Tier,
		Policy: res.Policy.ID,
		Source: res.Source,
		Status: status,
	}
}

// Reset clears every counter of client. Resetting an unknown client succeeds.
func (m *Manager) Reset(ctx context.Context, client limits.ClientID) (int, error) {
	if err := ValidateClientID(client); err != nil {
		return 0, err
	}
	return m.limiter.Reset(ctx, client)
}
