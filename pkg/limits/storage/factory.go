package storage

import (
	"fmt"
)

// Config selects and configures a store backend.
type Config struct {
	// Backend is one of "memory", "redis" or "sqlite".
	Backend string

	Memory MemoryStoreConfig
	Redis  RedisStoreConfig
	SQLite SQLiteStoreConfig
}

// Open creates the store named by cfg.Backend. It does not contact remote
// backends; call Ping to verify connectivity.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(cfg.Memory), nil
	case BackendRedis:
		if len(cfg.Redis.Addresses) == 0 {
			return nil, fmt.Errorf("redis store requires at least one address")
		}
		return NewRedisStore(NewRedisClient(cfg.Redis), cfg.Redis.KeyPrefix), nil
	case BackendSQLite:
		return NewSQLiteStoreWithConfig(cfg.SQLite)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// NeedsSweep reports whether the backend relies on the janitor to drop idle logs.
func NeedsSweep(backend string) bool {
	return backend != BackendRedis
}
