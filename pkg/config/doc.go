// Package config provides configuration management for Sentinel.
//
// This package handles loading, validating, and managing configuration from
// YAML files with .env and environment variable overrides.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("sentinel.yaml")                 // file and defaults only
//	cfg, err := config.LoadConfigWithEnvOverrides("sentinel.yaml") // plus .env and SENTINEL_*
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention SENTINEL_SECTION_FIELD:
//
//   - SENTINEL_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - SENTINEL_STORAGE_BACKEND overrides storage.backend
//   - SENTINEL_ADMISSION_WHITELIST_NETWORKS overrides admission.whitelist_networks (comma-separated)
//
// A .env file next to the configuration file is loaded first; variables that
// are already set in the process environment win over the file.
//
// # Configuration Precedence
//
//  1. Values from YAML file
//  2. Default values for anything left unset (defaults.go)
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// Validation collects every problem before failing. Admission policies and
// the whitelist are validated by building them, so the same rules apply at
// load time and at runtime:
//
//	configuration validation failed with 2 errors:
//	  - admission.path_policies[1].prefix: duplicate prefix "/api/" (already defined by path_policies[0])
//	  - admission.whitelist_addresses[0]: invalid IP address "localhost"
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//	  upstream_url: "http://127.0.0.1:9000"
//
//	admission:
//	  protected_prefix: "/api/"
//	  default_policy:
//	    windows:
//	      - {name: requests_per_minute, duration_seconds: 60, max_requests: 100}
//	  path_policies:
//	    - prefix: "/api/chatbot/"
//	      windows:
//	        - {name: requests_per_minute, duration_seconds: 60, max_requests: 60}
//	  whitelist_networks: ["10.0.0.0/8"]
//
//	storage:
//	  backend: redis
//	  redis:
//	    addresses: ["127.0.0.1:6379"]
//
// # Reloading
//
// Watcher observes the configuration file and hands each valid new
// configuration to a callback; invalid edits are logged and ignored.
package config
