package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// globalConfig holds the singleton configuration instance.
	globalConfig atomic.Pointer[Config]

	// globalPath is the file the singleton was loaded from.
	globalPath atomic.Value

	// initOnce ensures configuration is initialized only once.
	initOnce sync.Once
)

// Initialize loads configuration from the specified path with environment
// variable overrides and stores it as the global singleton configuration.
// Subsequent calls are ignored.
func Initialize(path string) error {
	var initErr error

	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		globalConfig.Store(cfg)
		globalPath.Store(path)
	})

	return initErr
}

// GetConfig returns the global configuration instance, or nil if Initialize
// has not succeeded. Callers must treat the result as read-only.
func GetConfig() *Config {
	return globalConfig.Load()
}

// SetConfig replaces the global configuration instance. Intended for tests.
func SetConfig(cfg *Config) {
	globalConfig.Store(cfg)
}

// ReloadConfig reloads the configuration from path. The global instance is
// replaced only if loading and validation succeed; on error the previous
// configuration remains in effect.
func ReloadConfig(path string) (*Config, error) {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}

	globalConfig.Store(cfg)
	globalPath.Store(path)
	return cfg, nil
}

// ConfigPath returns the path the global configuration was loaded from.
func ConfigPath() string {
	p, _ := globalPath.Load().(string)
	return p
}

// MustGetConfig returns the global configuration instance.
// It panics if the configuration has not been initialized.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
