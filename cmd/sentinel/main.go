// Sentinel is a rate limiting admission gateway.
//
// It sits in front of a single upstream service and counts requests under a
// protected path prefix against per-client quotas over several rolling
// windows. Requests over quota are rejected with 429 and a Retry-After
// header; the rest are proxied upstream.
//
// Usage:
//
//	# Start the gateway with built-in defaults
//	sentinel run
//
//	# Start with a configuration file and reload policies on change
//	sentinel run --config /etc/sentinel/config.yaml --watch
//
//	# Check a configuration file and print the resolved policies
//	sentinel validate --config config.yaml
//
//	# Inspect or clear a client's counters through the admin API
//	sentinel status ip:203.0.113.7 --server http://localhost:8080
//	sentinel reset user:42 --server http://localhost:8080
//
//	# Send a burst of requests and summarize the admission outcomes
//	sentinel bench --target http://localhost:8080/api/items/ --requests 200
package main

func main() {
	Execute()
}
