package identity

import (
	"errors"
	"net/netip"
	"testing"

	"mercator-hq/sentinel/pkg/limits"
)

func TestNewWhitelist_Validation(t *testing.T) {
	tests := []struct {
		name          string
		addresses     []string
		networks      []string
		expectedField string
	}{
		{"valid", []string{"127.0.0.1", "::1"}, []string{"10.0.0.0/8", "2001:db8::/32"}, ""},
		{"non-canonical network is masked", nil, []string{"10.1.2.3/8"}, ""},
		{"hostname literal", []string{"127.0.0.1", "localhost"}, nil, "whitelist_addresses[1]"},
		{"missing prefix length", nil, []string{"10.0.0.0"}, "whitelist_networks[0]"},
		{"prefix too long", nil, []string{"10.0.0.0/8", "10.0.0.0/33"}, "whitelist_networks[1]"},
		{"garbage network", nil, []string{"not/a/net"}, "whitelist_networks[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWhitelist(tt.addresses, tt.networks)
			if tt.expectedField == "" {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}

			var cfgErr *limits.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected ConfigurationError, got %v", err)
			}
			if cfgErr.Field != tt.expectedField {
				t.Errorf("Expected field %s, got %s", tt.expectedField, cfgErr.Field)
			}
			if !errors.Is(err, limits.ErrConfigInvalid) {
				t.Error("Expected error to match ErrConfigInvalid")
			}
		})
	}
}

func TestWhitelist_Contains(t *testing.T) {
	w, err := NewWhitelist(
		[]string{"127.0.0.1", "::1", "198.51.100.7"},
		[]string{"10.0.0.0/8", "2001:db8::/32", "::ffff:192.0.2.0/120"},
	)
	if err != nil {
		t.Fatalf("NewWhitelist failed: %v", err)
	}

	tests := []struct {
		addr     string
		expected bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"198.51.100.7", true},
		{"198.51.100.8", false},
		{"10.1.2.3", true},
		{"10.255.255.255", true},
		{"11.0.0.1", false},
		{"2001:db8:1::5", true},
		{"2001:db9::1", false},
		{"::ffff:10.1.2.3", true},
		{"192.0.2.44", true},
		{"192.0.3.1", false},
	}

	for _, tt := range tests {
		got := w.Contains(netip.MustParseAddr(tt.addr))
		if got != tt.expected {
			t.Errorf("Contains(%s): expected %v, got %v", tt.addr, tt.expected, got)
		}
	}

	if w.Contains(netip.Addr{}) {
		t.Error("Expected invalid address not to be whitelisted")
	}
	if w.Len() != 6 {
		t.Errorf("Expected 6 entries, got %d", w.Len())
	}
}

func TestWhitelist_Allows(t *testing.T) {
	w, err := NewWhitelist(nil, []string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("NewWhitelist failed: %v", err)
	}

	if !w.Allows(Identify(Request{RemoteAddr: "10.1.2.3:999"})) {
		t.Error("Expected 10.1.2.3 to be allowed")
	}
	if !w.Allows(Identify(Request{Principal: "7", RemoteAddr: "10.1.2.3:999"})) {
		t.Error("Expected whitelisted address to bypass even when authenticated")
	}
	if w.Allows(Identify(Request{RemoteAddr: "garbage"})) {
		t.Error("Expected unresolved identity not to be allowed")
	}

	var empty *Whitelist
	if empty.Contains(netip.MustParseAddr("10.0.0.1")) {
		t.Error("Expected nil whitelist to contain nothing")
	}
}
