package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/limits/identity"
	"mercator-hq/sentinel/pkg/limits/policy"
	"mercator-hq/sentinel/pkg/limits/storage"
)

// minJWTSecretLength is the HS256 key size.
const minJWTSecretLength = 32

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Is matches limits.ErrConfigInvalid.
func (e ValidationError) Is(target error) bool {
	return target == limits.ErrConfigInvalid
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateAdmission(&cfg.Admission)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)
	errs = append(errs, validateAdmin(&cfg.Admin)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}

	if cfg.UpstreamURL != "" {
		u, err := url.Parse(cfg.UpstreamURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "server.upstream_url",
				Message: fmt.Sprintf("invalid URL %q: must be absolute (e.g., http://localhost:9000)", cfg.UpstreamURL),
			})
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, FieldError{
				Field:   "server.upstream_url",
				Message: fmt.Sprintf("unsupported scheme %q (must be http or https)", u.Scheme),
			})
		}
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "max header bytes must be non-negative"})
	}

	return errs
}

func validateAdmission(cfg *AdmissionConfig) []FieldError {
	var errs []FieldError

	if !strings.HasPrefix(cfg.ProtectedPrefix, "/") {
		errs = append(errs, FieldError{
			Field:   "admission.protected_prefix",
			Message: fmt.Sprintf("prefix %q must start with /", cfg.ProtectedPrefix),
		})
	}

	for i, p := range cfg.ExemptPaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("admission.exempt_paths[%d]", i),
				Message: fmt.Sprintf("path %q must start with /", p),
			})
		}
	}

	if cfg.StoreTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "admission.store_timeout",
			Message: "store timeout must be positive",
		})
	}
	if cfg.WarnInterval < 0 {
		errs = append(errs, FieldError{
			Field:   "admission.warn_interval",
			Message: "warn interval must be non-negative",
		})
	}

	if _, err := policy.NewRegistry(cfg.RegistryConfig()); err != nil {
		errs = append(errs, admissionFieldError(err))
	}

	if _, err := identity.NewWhitelist(cfg.WhitelistAddresses, cfg.WhitelistNetworks); err != nil {
		errs = append(errs, admissionFieldError(err))
	}

	return errs
}

// admissionFieldError converts a component ConfigurationError to a FieldError
// rooted at the admission section.
func admissionFieldError(err error) FieldError {
	var cfgErr *limits.ConfigurationError
	if errors.As(err, &cfgErr) {
		return FieldError{Field: "admission." + cfgErr.Field, Message: cfgErr.Message}
	}
	return FieldError{Field: "admission", Message: err.Error()}
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case storage.BackendMemory:
		if cfg.Memory.MaxKeys < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.memory.max_keys",
				Message: "max keys must be non-negative",
			})
		}
	case storage.BackendRedis:
		if len(cfg.Redis.Addresses) == 0 {
			errs = append(errs, FieldError{
				Field:   "storage.redis.addresses",
				Message: "at least one address is required for the redis backend",
			})
		}
		for i, addr := range cfg.Redis.Addresses {
			if strings.TrimSpace(addr) == "" {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("storage.redis.addresses[%d]", i),
					Message: "address cannot be empty",
				})
			}
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, FieldError{Field: "storage.redis.db", Message: "db must be non-negative"})
		}
		if len(cfg.Redis.Addresses) > 1 && cfg.Redis.DB != 0 {
			errs = append(errs, FieldError{
				Field:   "storage.redis.db",
				Message: "cluster deployments only support db 0",
			})
		}
	case storage.BackendSQLite:
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "path is required for the sqlite backend",
			})
		}
		if cfg.SQLite.Driver != storage.DriverModernc && cfg.SQLite.Driver != storage.DriverMattn {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("unsupported driver %q (must be sqlite or sqlite3)", cfg.SQLite.Driver),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q (must be memory, redis or sqlite)", cfg.Backend),
		})
	}

	if err := storage.ValidateSchedule(cfg.SweepSchedule); err != nil {
		errs = append(errs, FieldError{Field: "storage.sweep_schedule", Message: err.Error()})
	}

	return errs
}

func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	seen := make(map[string]int, len(cfg.APIKeys))
	for i, k := range cfg.APIKeys {
		field := fmt.Sprintf("security.api_keys[%d]", i)
		if k.Key == "" {
			errs = append(errs, FieldError{Field: field + ".key", Message: "key is required"})
		} else if j, dup := seen[k.Key]; dup {
			errs = append(errs, FieldError{
				Field:   field + ".key",
				Message: fmt.Sprintf("duplicate key (already defined by security.api_keys[%d])", j),
			})
		} else {
			seen[k.Key] = i
		}
		if k.UserID == "" {
			errs = append(errs, FieldError{Field: field + ".user_id", Message: "user id is required"})
		}
	}

	if cfg.JWT.Enabled {
		if len(cfg.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, FieldError{
				Field:   "security.jwt.secret",
				Message: fmt.Sprintf("secret must be at least %d bytes", minJWTSecretLength),
			})
		}
		if cfg.JWT.PremiumClaim == "" {
			errs = append(errs, FieldError{Field: "security.jwt.premium_claim", Message: "premium claim name is required"})
		}
	}

	return errs
}

func validateAdmin(cfg *AdminConfig) []FieldError {
	var errs []FieldError

	if cfg.Enabled && (!strings.HasPrefix(cfg.PathPrefix, "/") || strings.HasSuffix(cfg.PathPrefix, "/")) {
		errs = append(errs, FieldError{
			Field:   "admin.path_prefix",
			Message: fmt.Sprintf("prefix %q must start with / and must not end with /", cfg.PathPrefix),
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: fmt.Sprintf("path %q must start with /", cfg.Metrics.Path),
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: fmt.Sprintf("sample ratio must be between 0 and 1, got %v", cfg.Tracing.SampleRatio),
		})
	}

	if !strings.HasPrefix(cfg.Health.LivenessPath, "/") {
		errs = append(errs, FieldError{Field: "telemetry.health.liveness_path", Message: "path must start with /"})
	}
	if !strings.HasPrefix(cfg.Health.ReadinessPath, "/") {
		errs = append(errs, FieldError{Field: "telemetry.health.readiness_path", Message: "path must start with /"})
	}
	if cfg.Health.CheckTimeout < 0 {
		errs = append(errs, FieldError{Field: "telemetry.health.check_timeout", Message: "check timeout must be positive"})
	}

	return errs
}
