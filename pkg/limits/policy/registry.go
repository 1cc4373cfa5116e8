package policy

import (
	"fmt"
	"sort"
	"strings"

	"mercator-hq/sentinel/pkg/limits"
)

// Policy ID prefixes.
const (
	DefaultPolicyID = "default"
	pathIDPrefix    = "path:"
	tierIDPrefix    = "tier:"
)

// PathPolicy binds a set of windows to a path prefix.
type PathPolicy struct {
	Prefix  string
	Windows []limits.Window
}

// RegistryConfig is the input to NewRegistry.
type RegistryConfig struct {
	// Default applies when no prefix matches. Required.
	Default []limits.Window

	// Paths are matched by longest prefix.
	Paths []PathPolicy

	// Tiers optionally override path policies per tier.
	Tiers map[limits.Tier][]limits.Window
}

// Registry maps request paths and tiers to policies.
type Registry struct {
	def *limits.Policy

	// paths is sorted by descending prefix length.
	paths []pathEntry

	// ordered keeps configuration order for listing.
	ordered []*limits.Policy

	tiers map[limits.Tier]*limits.Policy
}

type pathEntry struct {
	prefix string
	policy *limits.Policy
}

// NewRegistry validates cfg and builds an immutable registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	def, err := newPolicy(DefaultPolicyID, "default_policy", cfg.Default)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		def:   def,
		tiers: make(map[limits.Tier]*limits.Policy, len(cfg.Tiers)),
	}

	seen := make(map[string]int, len(cfg.Paths))
	for i, pp := range cfg.Paths {
		field := fmt.Sprintf("path_policies[%d]", i)
		if strings.TrimSpace(pp.Prefix) == "" {
			return nil, limits.NewConfigurationError(field+".prefix", "prefix cannot be empty")
		}
		if j, dup := seen[pp.Prefix]; dup {
			return nil, limits.NewConfigurationError(field+".prefix",
				"duplicate prefix %q (already defined by path_policies[%d])", pp.Prefix, j)
		}
		seen[pp.Prefix] = i

		p, err := newPolicy(pathIDPrefix+pp.Prefix, field, pp.Windows)
		if err != nil {
			return nil, err
		}
		r.paths = append(r.paths, pathEntry{prefix: pp.Prefix, policy: p})
		r.ordered = append(r.ordered, p)
	}

	sort.SliceStable(r.paths, func(i, j int) bool {
		return len(r.paths[i].prefix) > len(r.paths[j].prefix)
	})

	for tier, windows := range cfg.Tiers {
		field := "tier_policies." + string(tier)
		if _, err := limits.ParseTier(string(tier)); err != nil {
			return nil, limits.NewConfigurationError(field, "%v", err)
		}
		p, err := newPolicy(tierIDPrefix+string(tier), field, windows)
		if err != nil {
			return nil, err
		}
		r.tiers[tier] = p
	}

	return r, nil
}

// newPolicy validates windows and returns a policy with its own sorted copy.
func newPolicy(id, field string, windows []limits.Window) (*limits.Policy, error) {
	if len(windows) == 0 {
		return nil, limits.NewConfigurationError(field+".windows", "at least one window is required")
	}

	names := make(map[string]struct{}, len(windows))
	for i, w := range windows {
		wf := fmt.Sprintf("%s.windows[%d]", field, i)
		if strings.TrimSpace(w.Name) == "" {
			return nil, limits.NewConfigurationError(wf+".name", "window name cannot be empty")
		}
		if !validWindowName(w.Name) {
			return nil, limits.NewConfigurationError(wf+".name",
				"window name %q may only contain letters, digits, '_', '-' and '.'", w.Name)
		}
		if _, dup := names[w.Name]; dup {
			return nil, limits.NewConfigurationError(wf+".name", "duplicate window name %q", w.Name)
		}
		names[w.Name] = struct{}{}

		if w.Duration <= 0 {
			return nil, limits.NewConfigurationError(wf+".duration_seconds",
				"duration must be positive, got %v", w.Duration)
		}
		if w.MaxRequests <= 0 {
			return nil, limits.NewConfigurationError(wf+".max_requests",
				"max_requests must be positive, got %d", w.MaxRequests)
		}
	}

	sorted := make([]limits.Window, len(windows))
	copy(sorted, windows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Duration < sorted[j].Duration
	})

	return &limits.Policy{ID: id, Windows: sorted}, nil
}

// Lookup returns the policy of the longest prefix matching path, or the default.
func (r *Registry) Lookup(path string) *limits.Policy {
	if p, ok := r.match(path); ok {
		return p
	}
	return r.def
}

func (r *Registry) match(path string) (*limits.Policy, bool) {
	for _, e := range r.paths {
		if strings.HasPrefix(path, e.prefix) {
			return e.policy, true
		}
	}
	return nil, false
}

// Default returns the default policy.
func (r *Registry) Default() *limits.Policy {
	return r.def
}

// TierPolicy returns the override policy for tier, if configured.
func (r *Registry) TierPolicy(tier limits.Tier) (*limits.Policy, bool) {
	p, ok := r.tiers[tier]
	return p, ok
}

// Policies lists the default, then path policies in configuration order,
// then tier policies in tier order.
func (r *Registry) Policies() []*limits.Policy {
	out := make([]*limits.Policy, 0, 1+len(r.ordered)+len(r.tiers))
	out = append(out, r.def)
	out = append(out, r.ordered...)
	for _, t := range limits.Tiers {
		if p, ok := r.tiers[t]; ok {
			out = append(out, p)
		}
	}
	return out
}

// validWindowName reports whether name is safe inside a response header name
// and a storage key.
func validWindowName(name string) bool {
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '-', c == '.':
		default:
			return false
		}
	}
	return true
}
