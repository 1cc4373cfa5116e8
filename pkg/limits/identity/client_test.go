package identity

import (
	"errors"
	"net/http/httptest"
	"testing"

	"mercator-hq/sentinel/pkg/limits"
)

func TestIdentify(t *testing.T) {
	tests := []struct {
		name             string
		req              Request
		expectedClient   limits.ClientID
		expectedResolved bool
	}{
		{
			name:             "authenticated principal wins",
			req:              Request{Principal: "42", ForwardedFor: "203.0.113.9", RemoteAddr: "10.0.0.1:5555"},
			expectedClient:   "user:42",
			expectedResolved: true,
		},
		{
			name:             "first forwarded hop",
			req:              Request{ForwardedFor: "203.0.113.9, 10.0.0.2, 10.0.0.3", RemoteAddr: "10.0.0.1:5555"},
			expectedClient:   "ip:203.0.113.9",
			expectedResolved: true,
		},
		{
			name:             "forwarded hop with port",
			req:              Request{ForwardedFor: "203.0.113.9:4711", RemoteAddr: "10.0.0.1:5555"},
			expectedClient:   "ip:203.0.113.9",
			expectedResolved: true,
		},
		{
			name:             "malformed forwarded hop falls back to socket",
			req:              Request{ForwardedFor: "not-an-ip, 203.0.113.9", RemoteAddr: "10.0.0.1:5555"},
			expectedClient:   "ip:10.0.0.1",
			expectedResolved: true,
		},
		{
			name:             "socket address",
			req:              Request{RemoteAddr: "192.0.2.7:80"},
			expectedClient:   "ip:192.0.2.7",
			expectedResolved: true,
		},
		{
			name:             "ipv6 socket address",
			req:              Request{RemoteAddr: "[2001:db8::1]:443"},
			expectedClient:   "ip:2001:db8::1",
			expectedResolved: true,
		},
		{
			name:             "ipv4-mapped ipv6 is unmapped",
			req:              Request{RemoteAddr: "[::ffff:192.0.2.7]:80"},
			expectedClient:   "ip:192.0.2.7",
			expectedResolved: true,
		},
		{
			name:             "bare host without port",
			req:              Request{RemoteAddr: "192.0.2.8"},
			expectedClient:   "ip:192.0.2.8",
			expectedResolved: true,
		},
		{
			name:             "unparsable address",
			req:              Request{RemoteAddr: "@pipe"},
			expectedClient:   limits.UnknownClient,
			expectedResolved: false,
		},
		{
			name:             "nothing at all",
			req:              Request{},
			expectedClient:   limits.UnknownClient,
			expectedResolved: false,
		},
		{
			name:             "principal without address",
			req:              Request{Principal: "alice"},
			expectedClient:   "user:alice",
			expectedResolved: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Identify(tt.req)
			if id.Client != tt.expectedClient {
				t.Errorf("Expected client %s, got %s", tt.expectedClient, id.Client)
			}
			if id.Resolved != tt.expectedResolved {
				t.Errorf("Expected resolved %v, got %v", tt.expectedResolved, id.Resolved)
			}
		})
	}
}

func TestParseAddress_Unresolvable(t *testing.T) {
	for _, s := range []string{"", "   ", "localhost", "example.com:80", "1.2.3"} {
		if _, err := ParseAddress(s); !errors.Is(err, limits.ErrUnresolvableClient) {
			t.Errorf("ParseAddress(%q): expected ErrUnresolvableClient, got %v", s, err)
		}
	}
}

func TestFromHTTPRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/chatbot/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Add("X-Forwarded-For", "198.51.100.1")
	r.Header.Add("X-Forwarded-For", "10.0.0.9")

	req := FromHTTPRequest(r, "")
	if req.ForwardedFor != "198.51.100.1,10.0.0.9" {
		t.Errorf("Expected joined forwarded chain, got %q", req.ForwardedFor)
	}

	id := Identify(req)
	if id.Client != "ip:198.51.100.1" {
		t.Errorf("Expected ip:198.51.100.1, got %s", id.Client)
	}

	id = Identify(FromHTTPRequest(r, "bob"))
	if id.Client != "user:bob" {
		t.Errorf("Expected user:bob, got %s", id.Client)
	}
}
