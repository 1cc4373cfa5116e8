// Package proxy forwards admitted requests to the protected upstream.
//
// The upstream handler is the innermost handler of the server chain: every
// request that reaches it has passed authentication and admission. Errors
// produced by the gateway itself (unreachable upstream, unknown route) use
// the same JSON shape as the 429 body:
//
//	{"error": "Bad Gateway", "message": "upstream unavailable"}
//
// Subpackage middleware holds the HTTP middleware chain, including the
// admission middleware that renders rate limit headers and 429 responses.
package proxy
