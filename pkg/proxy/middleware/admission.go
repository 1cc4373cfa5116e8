package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/limits/admission"
	"mercator-hq/sentinel/pkg/limits/identity"
	"mercator-hq/sentinel/pkg/proxy"
	"mercator-hq/sentinel/pkg/security/auth"
)

// Rate limit response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderWindow     = "X-RateLimit-Window"
	HeaderBypass     = "X-RateLimit-Bypass"
	HeaderRetryAfter = "Retry-After"
)

// RateLimitResponse is the 429 body.
type RateLimitResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after"`
	Limit      int    `json:"limit"`
	Window     string `json:"window"`
}

// Admission counts requests under the protected prefix against the
// policies of the manager currently held by holder. The manager is loaded
// per request so a configuration reload applies to the next request.
func Admission(holder *admission.Holder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := holder.Load()
			if m == nil || !m.Applies(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			req := admission.Request{Path: r.URL.Path}
			principal := ""
			if p, ok := auth.PrincipalFromContext(r.Context()); ok {
				principal = p.UserID
				req.Premium = p.Premium
			}
			req.Identity = identity.FromHTTPRequest(r, principal)

			d := m.Admit(r.Context(), req)
			ctx := setDecision(r.Context(), d)

			switch {
			case d.Bypassed:
				w.Header().Set(HeaderBypass, "whitelist")
			case d.FailOpen:
			case !d.Allowed:
				writeRateLimited(w, d)
				return
			default:
				setRateLimitHeaders(w.Header(), d)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// setRateLimitHeaders writes the tightest window unsuffixed, then every
// window under its own name.
func setRateLimitHeaders(h http.Header, d *limits.Decision) {
	tightest := d.Tightest()
	if tightest == nil {
		return
	}
	setWindowHeaders(h, "X-RateLimit", tightest)

	for i := range d.Windows {
		r := &d.Windows[i]
		setWindowHeaders(h, "X-RateLimit-"+HeaderName(r.Window.Name), r)
	}
}

func setWindowHeaders(h http.Header, prefix string, r *limits.WindowResult) {
	h.Set(prefix+"-Limit", strconv.Itoa(r.Window.MaxRequests))
	h.Set(prefix+"-Remaining", strconv.Itoa(r.Remaining))
	h.Set(prefix+"-Window", r.Window.Label())
}

func writeRateLimited(w http.ResponseWriter, d *limits.Decision) {
	v := d.Violated
	retryAfter := RetryAfterSeconds(d.RetryAfter)

	setWindowHeaders(w.Header(), "X-RateLimit", v)
	w.Header().Set(HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))

	proxy.WriteJSON(w, http.StatusTooManyRequests, RateLimitResponse{
		Error:      "Rate limit exceeded",
		Message:    "Too many requests. Limit: " + strconv.Itoa(v.Window.MaxRequests) + " requests per " + v.Window.Label(),
		RetryAfter: retryAfter,
		Limit:      v.Window.MaxRequests,
		Window:     v.Window.Label(),
	})
}

// RetryAfterSeconds rounds d up to whole seconds, at least 1.
func RetryAfterSeconds(d time.Duration) int64 {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// HeaderName renders a window name as a header segment:
// "requests_per_minute" becomes "Requests-Per-Minute".
func HeaderName(window string) string {
	parts := strings.FieldsFunc(window, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}
