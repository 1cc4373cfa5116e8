package identity

import (
	"fmt"
	"net/netip"
	"strings"

	"mercator-hq/sentinel/pkg/limits"
)

// Whitelist grants rate-limit bypass to literal addresses and CIDR networks.
// It is immutable after construction and safe for concurrent reads.
type Whitelist struct {
	addrs    map[netip.Addr]struct{}
	networks []netip.Prefix
}

// NewWhitelist validates and builds a whitelist. Any malformed entry is a
// *limits.ConfigurationError naming its position.
func NewWhitelist(addresses, networks []string) (*Whitelist, error) {
	w := &Whitelist{
		addrs:    make(map[netip.Addr]struct{}, len(addresses)),
		networks: make([]netip.Prefix, 0, len(networks)),
	}

	for i, a := range addresses {
		addr, err := netip.ParseAddr(strings.TrimSpace(a))
		if err != nil {
			return nil, limits.NewConfigurationError(
				fmt.Sprintf("whitelist_addresses[%d]", i),
				"invalid IP address %q", a)
		}
		w.addrs[normalize(addr)] = struct{}{}
	}

	for i, n := range networks {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(n))
		if err != nil {
			return nil, limits.NewConfigurationError(
				fmt.Sprintf("whitelist_networks[%d]", i),
				"invalid CIDR network %q", n)
		}
		if prefix.Addr().Is4In6() {
			bits := prefix.Bits() - 96
			if bits < 0 {
				return nil, limits.NewConfigurationError(
					fmt.Sprintf("whitelist_networks[%d]", i),
					"IPv4-mapped network %q is shorter than /96", n)
			}
			prefix = netip.PrefixFrom(prefix.Addr().Unmap(), bits)
		}
		w.networks = append(w.networks, prefix.Masked())
	}

	return w, nil
}

// Contains reports whether addr is whitelisted. An invalid addr never is.
func (w *Whitelist) Contains(addr netip.Addr) bool {
	if w == nil || !addr.IsValid() {
		return false
	}
	addr = normalize(addr)

	if _, ok := w.addrs[addr]; ok {
		return true
	}
	for _, p := range w.networks {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Allows reports whether the identity's resolved address is whitelisted.
func (w *Whitelist) Allows(id Identity) bool {
	return id.Resolved && w.Contains(id.Address)
}

// Len returns the number of literal addresses and networks.
func (w *Whitelist) Len() int {
	if w == nil {
		return 0
	}
	return len(w.addrs) + len(w.networks)
}
