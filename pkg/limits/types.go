package limits

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ClientID is the opaque key a client's counters are stored under.
// It is either "user:<id>" for an authenticated principal or "ip:<address>".
type ClientID string

const (
	// UserPrefix prefixes client keys derived from an authenticated principal.
	UserPrefix = "user:"

	// AddressPrefix prefixes client keys derived from a network address.
	AddressPrefix = "ip:"

	// UnknownClient is the shared bucket for requests whose address cannot be parsed.
	UnknownClient ClientID = "ip:unknown"
)

// UserClient returns the client key for an authenticated principal.
func UserClient(id string) ClientID {
	return ClientID(UserPrefix + id)
}

// AddressClient returns the client key for a network address.
func AddressClient(addr string) ClientID {
	return ClientID(AddressPrefix + addr)
}

// IsUser reports whether the key was derived from an authenticated principal.
func (c ClientID) IsUser() bool {
	return strings.HasPrefix(string(c), UserPrefix)
}

func (c ClientID) String() string {
	return string(c)
}

// Tier classifies a requester for quota selection.
type Tier string

const (
	// TierAnonymous is a requester without an authenticated principal.
	TierAnonymous Tier = "anonymous"

	// TierAuthenticated is a requester with an authenticated principal.
	TierAuthenticated Tier = "authenticated"

	// TierPremium is an authenticated requester carrying the premium flag.
	TierPremium Tier = "premium"
)

// Tiers lists every known tier in ascending order of privilege.
var Tiers = []Tier{TierAnonymous, TierAuthenticated, TierPremium}

// ParseTier converts a configuration or query value into a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierAnonymous:
		return TierAnonymous, nil
	case TierAuthenticated:
		return TierAuthenticated, nil
	case TierPremium:
		return TierPremium, nil
	}
	return "", fmt.Errorf("unknown tier %q (must be one of anonymous, authenticated, premium)", s)
}

// Window is a single rolling quota: at most MaxRequests within any Duration-long interval.
type Window struct {
	// Name identifies the window inside its policy (e.g. "requests_per_minute").
	Name string

	// Duration is the trailing interval the window counts over.
	Duration time.Duration

	// MaxRequests is the number of requests admitted per Duration.
	MaxRequests int
}

// Label returns the human-readable unit used in headers and 429 bodies.
func (w Window) Label() string {
	switch w.Duration {
	case time.Second:
		return "second"
	case time.Minute:
		return "minute"
	case time.Hour:
		return "hour"
	case 24 * time.Hour:
		return "day"
	}
	return fmt.Sprintf("%d seconds", int64(w.Duration/time.Second))
}

// Policy is an ordered set of windows bound to a path prefix, a tier or the default.
// Policies are immutable once built by the policy registry.
type Policy struct {
	// ID is the policy identity used in counter keys ("default", "path:/api/", "tier:premium").
	ID string

	// Windows is sorted by ascending duration.
	Windows []Window
}

// Window returns the window with the given name.
func (p *Policy) Window(name string) (Window, bool) {
	for _, w := range p.Windows {
		if w.Name == name {
			return w, true
		}
	}
	return Window{}, false
}

// WindowKey addresses one sliding log: a client's usage of one window of one policy.
type WindowKey struct {
	Client ClientID
	Policy string
	Window string
}

// String renders the key in the "client|policy|window" form used by the stores.
func (k WindowKey) String() string {
	return string(k.Client) + "|" + k.Policy + "|" + k.Window
}

// WindowResult is the outcome of one window for one request.
type WindowResult struct {
	Window Window

	// Count is the number of requests in the trailing window, including this one.
	Count int

	// Remaining is max(0, MaxRequests - Count).
	Remaining int

	// RetryAfter is the time until the oldest logged request leaves the window.
	RetryAfter time.Duration

	// Violated is true when Count exceeds MaxRequests.
	Violated bool
}

// Decision is the verdict for one request.
type Decision struct {
	// Allowed is false only on a genuine quota violation.
	Allowed bool

	// Bypassed is true for whitelisted clients; no counters were touched.
	Bypassed bool

	// FailOpen is true when the counter store failed and the request was allowed anyway.
	FailOpen bool

	Client ClientID
	Tier   Tier
	Policy string

	// Windows holds a result per evaluated window, in policy order.
	Windows []WindowResult

	// Violated is the shortest-duration violated window, nil when allowed.
	Violated *WindowResult

	// RetryAfter mirrors Violated.RetryAfter.
	RetryAfter time.Duration
}

// Decision outcomes reported by Outcome.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeBypassed = "bypassed"
	OutcomeFailOpen = "fail_open"
)

// Outcome classifies the decision for logs and metrics.
func (d *Decision) Outcome() string {
	switch {
	case d.Bypassed:
		return OutcomeBypassed
	case d.FailOpen:
		return OutcomeFailOpen
	case !d.Allowed:
		return OutcomeDenied
	}
	return OutcomeAllowed
}

// Tightest returns the window closest to exhaustion: lowest remaining, then
// shortest duration. It returns nil when no window was evaluated.
func (d *Decision) Tightest() *WindowResult {
	if d.Violated != nil {
		return d.Violated
	}
	var tightest *WindowResult
	for i := range d.Windows {
		r := &d.Windows[i]
		if tightest == nil || r.Remaining < tightest.Remaining ||
			(r.Remaining == tightest.Remaining && r.Window.Duration < tightest.Window.Duration) {
			tightest = r
		}
	}
	return tightest
}

// Error types for admission control.
var (
	// ErrRateLimitExceeded is returned when a request violates a window.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrStoreUnavailable matches every counter store failure, including timeouts.
	ErrStoreUnavailable = errors.New("counter store unavailable")

	// ErrStoreFull is returned by bounded stores that cannot admit another key.
	ErrStoreFull = errors.New("counter store full")

	// ErrUnresolvableClient signals that no usable address could be derived for a request.
	ErrUnresolvableClient = errors.New("unresolvable client identity")

	// ErrConfigInvalid is matched by every ConfigurationError.
	ErrConfigInvalid = errors.New("invalid admission configuration")
)

// ConfigurationError reports an invalid admission setting. It is fatal at startup.
type ConfigurationError struct {
	// Field is the configuration path (e.g. "admission.whitelist_networks[2]").
	Field string

	// Message describes the problem.
	Message string
}

// NewConfigurationError creates a configuration error for the given field.
func NewConfigurationError(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap returns ErrConfigInvalid so callers can use errors.Is.
func (e *ConfigurationError) Unwrap() error {
	return ErrConfigInvalid
}

// StoreError wraps a counter store failure with the operation and key involved.
type StoreError struct {
	// Op is the store operation ("increment", "peek", "reset", "sweep", "ping").
	Op string

	// Key is the window key or client the operation targeted, if any.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error for error wrapping.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes every StoreError match ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}
