package config

import (
	"time"

	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/limits/policy"
	"mercator-hq/sentinel/pkg/limits/storage"
)

// Config is the root configuration structure for Sentinel.
// It contains all configuration sections for the gateway server, admission
// control, counter storage, authentication, the admin API and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// upstream and timeouts.
	Server ServerConfig `yaml:"server"`

	// Admission contains the rate limiting policies, whitelist and the
	// paths admission control applies to.
	Admission AdmissionConfig `yaml:"admission"`

	// Storage selects and configures the window counter store.
	Storage StorageConfig `yaml:"storage"`

	// Security contains authentication settings used to derive the
	// request principal and tier.
	Security SecurityConfig `yaml:"security"`

	// Admin controls the administrative status/reset API.
	Admin AdminConfig `yaml:"admin"`

	// Telemetry contains configuration for logging, metrics, tracing and
	// health endpoints.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// UpstreamURL is the service admitted requests are proxied to. When
	// empty, admitted requests receive a 404 JSON response.
	UpstreamURL string `yaml:"upstream_url"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// AdmissionConfig contains the admission control settings.
type AdmissionConfig struct {
	// ProtectedPrefix selects the paths admission control applies to.
	// Default: "/api/"
	ProtectedPrefix string `yaml:"protected_prefix"`

	// ExemptPaths are prefixes under ProtectedPrefix that are never limited.
	// Default: ["/api/health/", "/api/metrics/", "/api/schema/"]
	ExemptPaths []string `yaml:"exempt_paths"`

	// StoreTimeout bounds each counter store call. On timeout the request
	// is allowed.
	// Default: 50ms
	StoreTimeout time.Duration `yaml:"store_timeout"`

	// WarnInterval is the minimum spacing between store failure warnings.
	// Default: 10s
	WarnInterval time.Duration `yaml:"warn_interval"`

	// DefaultPolicy applies when no path prefix matches.
	// Default: 100/minute, 1000/hour, 10000/day
	DefaultPolicy PolicyConfig `yaml:"default_policy"`

	// PathPolicies are matched by longest prefix.
	PathPolicies []PathPolicyConfig `yaml:"path_policies"`

	// WhitelistAddresses are literal IPv4 or IPv6 addresses that bypass
	// admission control.
	// Default: ["127.0.0.1", "::1"]
	WhitelistAddresses []string `yaml:"whitelist_addresses"`

	// WhitelistNetworks are CIDR blocks that bypass admission control.
	WhitelistNetworks []string `yaml:"whitelist_networks"`

	// TierPolicies override path policies for a tier. Keys are
	// "anonymous", "authenticated" or "premium".
	// Default: premium 200/minute, 5000/hour, 50000/day
	TierPolicies map[string]PolicyConfig `yaml:"tier_policies"`
}

// PolicyConfig is a set of windows.
type PolicyConfig struct {
	Windows []WindowConfig `yaml:"windows"`
}

// PathPolicyConfig binds windows to a path prefix.
type PathPolicyConfig struct {
	Prefix  string         `yaml:"prefix"`
	Windows []WindowConfig `yaml:"windows"`
}

// WindowConfig is one rolling quota.
type WindowConfig struct {
	// Name identifies the window in headers and admin output.
	Name string `yaml:"name"`

	// DurationSeconds is the window length.
	DurationSeconds int `yaml:"duration_seconds"`

	// MaxRequests is the number of requests admitted per window.
	MaxRequests int `yaml:"max_requests"`
}

// RegistryConfig converts the policy sections into the registry input.
func (c *AdmissionConfig) RegistryConfig() policy.RegistryConfig {
	rc := policy.RegistryConfig{
		Default: toWindows(c.DefaultPolicy.Windows),
	}
	for _, pp := range c.PathPolicies {
		rc.Paths = append(rc.Paths, policy.PathPolicy{
			Prefix:  pp.Prefix,
			Windows: toWindows(pp.Windows),
		})
	}
	if len(c.TierPolicies) > 0 {
		rc.Tiers = make(map[limits.Tier][]limits.Window, len(c.TierPolicies))
		for tier, p := range c.TierPolicies {
			rc.Tiers[limits.Tier(tier)] = toWindows(p.Windows)
		}
	}
	return rc
}

func toWindows(in []WindowConfig) []limits.Window {
	out := make([]limits.Window, len(in))
	for i, w := range in {
		out[i] = limits.Window{
			Name:        w.Name,
			Duration:    time.Duration(w.DurationSeconds) * time.Second,
			MaxRequests: w.MaxRequests,
		}
	}
	return out
}

// StorageConfig selects the window counter store.
type StorageConfig struct {
	// Backend is "memory", "redis" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SweepSchedule is the cron schedule for removing expired logs from
	// stores without native expiry.
	// Default: "@every 1m"
	SweepSchedule string `yaml:"sweep_schedule"`

	Memory MemoryStorageConfig `yaml:"memory"`
	Redis  RedisStorageConfig  `yaml:"redis"`
	SQLite SQLiteStorageConfig `yaml:"sqlite"`
}

// MemoryStorageConfig configures the in-process store.
type MemoryStorageConfig struct {
	// MaxKeys bounds the number of live window logs, not their length:
	// every request in a window, denied ones included, keeps a timestamp.
	// Default: 100000
	MaxKeys int `yaml:"max_keys"`
}

// RedisStorageConfig configures the Redis store.
type RedisStorageConfig struct {
	// Addresses is one address for a standalone server, several for a cluster.
	// Default: ["127.0.0.1:6379"]
	Addresses []string `yaml:"addresses"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// KeyPrefix namespaces every key.
	// Default: "sentinel:rl"
	KeyPrefix string `yaml:"key_prefix"`

	// DialTimeout bounds connection establishment.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	PoolSize int `yaml:"pool_size"`
}

// SQLiteStorageConfig configures the SQLite store.
type SQLiteStorageConfig struct {
	// Path is the database file.
	// Default: "data/sentinel.db"
	Path string `yaml:"path"`

	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// BusyTimeout is how long to wait for locks.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// StoreConfig converts the section into the store factory input.
func (c *StorageConfig) StoreConfig() storage.Config {
	return storage.Config{
		Backend: c.Backend,
		Memory:  storage.MemoryStoreConfig{MaxKeys: c.Memory.MaxKeys},
		Redis: storage.RedisStoreConfig{
			Addresses:   c.Redis.Addresses,
			Username:    c.Redis.Username,
			Password:    c.Redis.Password,
			DB:          c.Redis.DB,
			KeyPrefix:   c.Redis.KeyPrefix,
			DialTimeout: c.Redis.DialTimeout,
			PoolSize:    c.Redis.PoolSize,
		},
		SQLite: storage.SQLiteStoreConfig{
			Path:        c.SQLite.Path,
			Driver:      c.SQLite.Driver,
			BusyTimeout: c.SQLite.BusyTimeout,
		},
	}
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	// APIKeys lists static API keys and the principal each maps to.
	APIKeys []APIKeyConfig `yaml:"api_keys"`

	// JWT configures bearer token validation.
	JWT JWTConfig `yaml:"jwt"`
}

// APIKeyConfig maps an API key to a principal.
type APIKeyConfig struct {
	Key     string `yaml:"key"`
	UserID  string `yaml:"user_id"`
	Premium bool   `yaml:"premium"`

	// Disabled keys are rejected with 401 instead of being treated as unknown.
	Disabled bool `yaml:"disabled"`
}

// JWTConfig configures HS256 bearer tokens.
type JWTConfig struct {
	Enabled bool `yaml:"enabled"`

	// Secret is the HMAC key. Must be at least 32 bytes.
	Secret string `yaml:"secret"`

	// Issuer and Audience are checked when set.
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`

	// PremiumClaim is a boolean claim marking premium principals.
	// Default: "premium"
	PremiumClaim string `yaml:"premium_claim"`
}

// AdminConfig controls the admin API.
type AdminConfig struct {
	Enabled bool `yaml:"enabled"`

	// PathPrefix is where the admin routes are mounted.
	// Default: "/admin/ratelimit"
	PathPrefix string `yaml:"path_prefix"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Health  HealthConfig  `yaml:"health"`
}

// LoggingConfig contains configuration for structured logging.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains configuration for the Prometheus endpoint.
type MetricsConfig struct {
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is where metrics are served.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// TracingConfig contains configuration for OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address (e.g., "localhost:4317").
	Endpoint string `yaml:"endpoint"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "sentinel"
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces sampled, between 0 and 1.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains configuration for health endpoints.
type HealthConfig struct {
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout bounds each readiness check.
	// Default: 2s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
