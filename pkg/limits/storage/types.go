package storage

import (
	"context"
	"time"

	"mercator-hq/sentinel/pkg/limits"
)

// Store defines the interface for window counter persistence.
// Implementations must be safe for concurrent use and must serialize
// mutations per key. Every failure is returned as a *limits.StoreError.
type Store interface {
	// Increment trims timestamps at or before now-duration from the key's log,
	// appends now, and returns the resulting count.
	Increment(ctx context.Context, key limits.WindowKey, now time.Time, duration time.Duration) (Count, error)

	// IncrementBatch performs Increment for every element, in a single round
	// trip where the backend supports it. Results are in input order.
	IncrementBatch(ctx context.Context, now time.Time, batch []Increment) ([]Count, error)

	// Peek returns the trimmed count without mutating the log.
	Peek(ctx context.Context, key limits.WindowKey, now time.Time, duration time.Duration) (Count, error)

	// Reset deletes every log belonging to the client and returns how many
	// were removed. Resetting an unknown client is not an error.
	Reset(ctx context.Context, client limits.ClientID) (int, error)

	// Sweep removes logs whose every timestamp has expired.
	Sweep(ctx context.Context, now time.Time) (int, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Count is the state of one sliding log after an operation.
type Count struct {
	// Count is the number of timestamps inside the trailing window.
	Count int

	// Oldest is the earliest timestamp inside the window, zero when empty.
	Oldest time.Time
}

// RetryAfter returns how long until the oldest timestamp leaves a window of
// the given duration, measured from now.
func (c Count) RetryAfter(now time.Time, duration time.Duration) time.Duration {
	if c.Oldest.IsZero() {
		return 0
	}
	wait := c.Oldest.Add(duration).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Increment is one element of an IncrementBatch call.
type Increment struct {
	Key      limits.WindowKey
	Duration time.Duration
}

// Backend names accepted by configuration.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

func storeError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &limits.StoreError{Op: op, Key: key, Err: err}
}
