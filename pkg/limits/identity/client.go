package identity

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"mercator-hq/sentinel/pkg/limits"
)

// Request is the identity-bearing part of an inbound request.
type Request struct {
	// Principal is the authenticated user id, empty for anonymous requests.
	Principal string

	// ForwardedFor is the raw X-Forwarded-For value (comma-separated chain).
	ForwardedFor string

	// RemoteAddr is the socket address, usually "host:port".
	RemoteAddr string
}

// Identity is the resolved client key plus the address used for whitelisting.
type Identity struct {
	Client limits.ClientID

	// Address is the client's network address; invalid when not Resolved.
	Address netip.Addr

	// Resolved is false when no address could be parsed.
	Resolved bool
}

// FromHTTPRequest extracts a Request from r. Principal comes from the
// authentication layer and may be empty.
func FromHTTPRequest(r *http.Request, principal string) Request {
	return Request{
		Principal:    principal,
		ForwardedFor: strings.Join(r.Header.Values("X-Forwarded-For"), ","),
		RemoteAddr:   r.RemoteAddr,
	}
}

// Identify derives the client key for req.
func Identify(req Request) Identity {
	id := Identity{}

	addr, err := resolveAddress(req)
	if err == nil {
		id.Address = addr
		id.Resolved = true
	}

	switch {
	case req.Principal != "":
		id.Client = limits.UserClient(req.Principal)
	case id.Resolved:
		id.Client = limits.AddressClient(addr.String())
	default:
		id.Client = limits.UnknownClient
	}
	return id
}

// resolveAddress prefers the first forwarded hop when it parses, then the
// socket address.
func resolveAddress(req Request) (netip.Addr, error) {
	if req.ForwardedFor != "" {
		first, _, _ := strings.Cut(req.ForwardedFor, ",")
		if addr, err := ParseAddress(first); err == nil {
			return addr, nil
		}
	}
	return ParseAddress(req.RemoteAddr)
}

// ParseAddress parses an IPv4 or IPv6 address, with or without a port.
// IPv4-mapped IPv6 addresses are unmapped and zones are dropped.
// Failures wrap limits.ErrUnresolvableClient.
func ParseAddress(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, fmt.Errorf("%w: empty address", limits.ErrUnresolvableClient)
	}

	if addr, err := netip.ParseAddr(strings.Trim(s, "[]")); err == nil {
		return normalize(addr), nil
	}

	host, _, err := net.SplitHostPort(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", limits.ErrUnresolvableClient, s)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", limits.ErrUnresolvableClient, s)
	}
	return normalize(addr), nil
}

func normalize(addr netip.Addr) netip.Addr {
	return addr.Unmap().WithZone("")
}
