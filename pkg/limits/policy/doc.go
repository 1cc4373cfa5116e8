// Package policy holds the immutable policy registry and tier resolution.
//
// # Policy Selection
//
// Every admitted request is counted against exactly one policy, chosen in
// this order:
//
//  1. Whitelisted clients bypass counting entirely (no policy).
//  2. A tier override policy, when one is configured for the requester's tier.
//     It replaces the path policy; window sets are never merged.
//  3. The policy of the longest path prefix matching the request path.
//  4. The default policy.
//
// # Validation
//
// NewRegistry rejects duplicate or empty prefixes, duplicate window names,
// non-positive durations and non-positive request limits with a
// *limits.ConfigurationError, so a malformed table can never silently fall
// back to the default at request time.
//
// # Thread Safety
//
// A Registry is read-only after construction and safe for concurrent use
// without locking.
package policy
