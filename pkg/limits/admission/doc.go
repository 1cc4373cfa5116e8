// Package admission wires identity, policy and rate limiting into a single
// per-request decision.
//
// A Manager is built once from configuration and is immutable; a Holder lets
// the server swap in a rebuilt Manager when the configuration changes
// without disturbing in-flight requests. Counters live in the store, so a
// swap keeps every client's usage.
package admission
