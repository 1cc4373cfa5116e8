package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Admission defaults
	DefaultProtectedPrefix = "/api/"
	DefaultStoreTimeout    = 50 * time.Millisecond
	DefaultWarnInterval    = 10 * time.Second

	// Storage defaults
	DefaultStorageBackend    = "memory"
	DefaultSweepSchedule     = "@every 1m"
	DefaultMemoryMaxKeys     = 100000
	DefaultRedisAddress      = "127.0.0.1:6379"
	DefaultRedisKeyPrefix    = "sentinel:rl"
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultSQLitePath        = "data/sentinel.db"
	DefaultSQLiteDriver      = "sqlite"
	DefaultSQLiteBusyTimeout = 5 * time.Second

	// Security defaults
	DefaultJWTPremiumClaim = "premium"

	// Admin defaults
	DefaultAdminPathPrefix = "/admin/ratelimit"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultTracingServiceName = "sentinel"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingTimeout     = 10 * time.Second
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
	DefaultHealthCheckTimeout = 2 * time.Second
)

// Standard window names.
const (
	WindowPerMinute = "requests_per_minute"
	WindowPerHour   = "requests_per_hour"
	WindowPerDay    = "requests_per_day"
)

// DefaultExemptPaths returns the paths under the protected prefix that are
// never limited.
func DefaultExemptPaths() []string {
	return []string{"/api/health/", "/api/metrics/", "/api/schema/"}
}

// DefaultWhitelistAddresses returns the loopback addresses.
func DefaultWhitelistAddresses() []string {
	return []string{"127.0.0.1", "::1"}
}

// StandardWindows returns minute, hour and day windows with the given maxima.
func StandardWindows(perMinute, perHour, perDay int) []WindowConfig {
	return []WindowConfig{
		{Name: WindowPerMinute, DurationSeconds: 60, MaxRequests: perMinute},
		{Name: WindowPerHour, DurationSeconds: 3600, MaxRequests: perHour},
		{Name: WindowPerDay, DurationSeconds: 86400, MaxRequests: perDay},
	}
}

// DefaultPathPolicies returns the built-in path policies, used only when the
// configuration defines no policies at all.
func DefaultPathPolicies() []PathPolicyConfig {
	return []PathPolicyConfig{
		{Prefix: "/api/chatbot/", Windows: StandardWindows(60, 1000, 10000)},
		{Prefix: "/api/locations/", Windows: StandardWindows(30, 500, 5000)},
		{Prefix: "/api/", Windows: StandardWindows(100, 2000, 20000)},
	}
}

// DefaultTierPolicies returns the built-in tier overrides.
func DefaultTierPolicies() map[string]PolicyConfig {
	return map[string]PolicyConfig{
		"premium": {Windows: StandardWindows(200, 5000, 50000)},
	}
}

// ApplyDefaults applies default values to any unset configuration fields.
// It modifies the provided config in place.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyAdmissionDefaults(&cfg.Admission)
	applyStorageDefaults(&cfg.Storage)
	applySecurityDefaults(&cfg.Security)
	applyAdminDefaults(&cfg.Admin)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
}

func applyAdmissionDefaults(cfg *AdmissionConfig) {
	if cfg.ProtectedPrefix == "" {
		cfg.ProtectedPrefix = DefaultProtectedPrefix
	}
	// nil means unset; an explicit empty list is kept.
	if cfg.ExemptPaths == nil {
		cfg.ExemptPaths = DefaultExemptPaths()
	}
	if cfg.WhitelistAddresses == nil {
		cfg.WhitelistAddresses = DefaultWhitelistAddresses()
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.WarnInterval == 0 {
		cfg.WarnInterval = DefaultWarnInterval
	}

	if len(cfg.DefaultPolicy.Windows) == 0 && cfg.PathPolicies == nil {
		cfg.PathPolicies = DefaultPathPolicies()
	}
	if len(cfg.DefaultPolicy.Windows) == 0 {
		cfg.DefaultPolicy.Windows = StandardWindows(100, 1000, 10000)
	}
	if cfg.TierPolicies == nil {
		cfg.TierPolicies = DefaultTierPolicies()
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultStorageBackend
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.Memory.MaxKeys == 0 {
		cfg.Memory.MaxKeys = DefaultMemoryMaxKeys
	}
	if len(cfg.Redis.Addresses) == 0 {
		cfg.Redis.Addresses = []string{DefaultRedisAddress}
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultSQLitePath
	}
	if cfg.SQLite.Driver == "" {
		cfg.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
}

func applySecurityDefaults(cfg *SecurityConfig) {
	if cfg.JWT.PremiumClaim == "" {
		cfg.JWT.PremiumClaim = DefaultJWTPremiumClaim
	}
}

func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = DefaultAdminPathPrefix
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

// NewDefaultConfig returns a configuration with every default applied.
// Metrics are enabled.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	ApplyDefaults(cfg)
	return cfg
}
