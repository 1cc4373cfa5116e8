// Package storage provides window counter stores for admission control.
//
// # Overview
//
// A store keeps one sliding log of request timestamps per window key and
// exposes atomic increment-and-trim, a read-only peek, and per-client reset.
// Three implementations are provided:
//
//   - Memory: per-key locked logs with TTL expiry and a hard key cap (default)
//   - Redis: sorted-set logs driven by Lua scripts, shared across instances
//   - SQLite: row-per-timestamp logs for single-node deployments that survive restarts
//
// Logs are trimmed of every timestamp at or before now - duration on each
// access, so no entry ever outlives its window. Idle keys expire on their own
// (Redis TTL) or are removed by Sweep, which the Janitor runs on a cron schedule.
//
// # Usage
//
//	store := storage.NewMemoryStore(storage.MemoryStoreConfig{MaxKeys: 100000})
//	defer store.Close()
//
//	counts, err := store.IncrementBatch(ctx, time.Now(), []storage.Increment{
//	    {Key: minuteKey, Duration: time.Minute},
//	    {Key: hourKey, Duration: time.Hour},
//	})
//
// # Thread Safety
//
// All stores are safe for concurrent use. Mutations of a single key are
// serialized, so concurrent requests from one client are never under-counted.
package storage
