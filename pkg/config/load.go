package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SENTINEL_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// An empty path yields the defaults. Environment variables are not consulted;
// use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention SENTINEL_SECTION_FIELD (e.g., SENTINEL_SERVER_LISTEN_ADDRESS).
//
// The loading sequence is:
//  1. Load a .env file next to the configuration file, if present
//  2. Load YAML from file
//  3. Apply default values
//  4. Apply environment variable overrides
//  5. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped and variables that are already set
// are not overwritten.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %q: %w", f, err)
		}
	}
	return nil
}

func parseFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envString("SERVER_UPSTREAM_URL", &cfg.Server.UpstreamURL)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envInt("SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)

	// Admission overrides
	envString("ADMISSION_PROTECTED_PREFIX", &cfg.Admission.ProtectedPrefix)
	envList("ADMISSION_EXEMPT_PATHS", &cfg.Admission.ExemptPaths)
	envDuration("ADMISSION_STORE_TIMEOUT", &cfg.Admission.StoreTimeout)
	envList("ADMISSION_WHITELIST_ADDRESSES", &cfg.Admission.WhitelistAddresses)
	envList("ADMISSION_WHITELIST_NETWORKS", &cfg.Admission.WhitelistNetworks)

	// Storage overrides
	envString("STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("STORAGE_SWEEP_SCHEDULE", &cfg.Storage.SweepSchedule)
	envInt("STORAGE_MEMORY_MAX_KEYS", &cfg.Storage.Memory.MaxKeys)
	envList("STORAGE_REDIS_ADDRESSES", &cfg.Storage.Redis.Addresses)
	envString("STORAGE_REDIS_USERNAME", &cfg.Storage.Redis.Username)
	envString("STORAGE_REDIS_PASSWORD", &cfg.Storage.Redis.Password)
	envInt("STORAGE_REDIS_DB", &cfg.Storage.Redis.DB)
	envString("STORAGE_REDIS_KEY_PREFIX", &cfg.Storage.Redis.KeyPrefix)
	envString("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	envString("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)

	// Security overrides
	envBool("SECURITY_JWT_ENABLED", &cfg.Security.JWT.Enabled)
	envString("SECURITY_JWT_SECRET", &cfg.Security.JWT.Secret)
	envString("SECURITY_JWT_ISSUER", &cfg.Security.JWT.Issuer)
	envString("SECURITY_JWT_AUDIENCE", &cfg.Security.JWT.Audience)

	// Admin overrides
	envBool("ADMIN_ENABLED", &cfg.Admin.Enabled)
	envString("ADMIN_PATH_PREFIX", &cfg.Admin.PathPrefix)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envBool("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

// envList reads a comma-separated list; blank elements are dropped.
func envList(name string, dst *[]string) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return
	}
	out := []string{}
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
