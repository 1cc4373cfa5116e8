// Package identity derives client keys from requests and decides whitelist bypass.
//
// A request is keyed by its authenticated principal ("user:<id>") when one
// exists, otherwise by the first X-Forwarded-For hop or the socket address
// ("ip:<address>"). Requests whose address cannot be parsed share the single
// coarse bucket "ip:unknown"; this is a documented degradation, not an error.
//
// The Whitelist matches literal addresses and CIDR networks. It is validated
// once at construction and is read-only afterwards.
package identity
