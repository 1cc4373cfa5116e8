// Package middleware provides the HTTP middleware of the gateway.
//
// # Middleware Chain
//
// The server composes the chain outermost first:
//
//	Recovery(RequestID(Logging(auth(Admission(upstream)))))
//
//  1. Recovery: turn panics into a JSON 500
//  2. RequestID: accept or generate X-Request-ID
//  3. Logging: one "request completed" record per request
//  4. auth (pkg/security/auth): resolve the principal
//  5. Admission: count the request and answer 429 when a window is exceeded
//
// # Admission headers
//
// For admitted requests the tightest window (lowest remaining, shortest
// duration on a tie) is reported without a suffix, and every window is
// reported under its own name:
//
//	X-RateLimit-Limit: 60
//	X-RateLimit-Remaining: 59
//	X-RateLimit-Window: minute
//	X-RateLimit-Requests-Per-Minute-Limit: 60
//	X-RateLimit-Requests-Per-Minute-Remaining: 59
//	X-RateLimit-Requests-Per-Minute-Window: minute
//	X-RateLimit-Requests-Per-Hour-Limit: 1000
//	...
//
// Rejected requests receive 429 with Retry-After and a JSON body:
//
//	{
//	  "error": "Rate limit exceeded",
//	  "message": "Too many requests. Limit: 60 requests per minute",
//	  "retry_after": 42,
//	  "limit": 60,
//	  "window": "minute"
//	}
//
// Whitelisted requests carry only X-RateLimit-Bypass: whitelist. Requests
// admitted because the counter store failed carry no rate limit headers.
package middleware
