package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/sentinel/pkg/limits"
)

// MemoryStore implements Store using in-process sliding logs.
// This is the default store and provides fast access with no persistence.
// All data is lost when the process exits, and counters are not shared
// between instances.
//
// Each log has its own mutex, so requests from different clients never
// contend on a shared lock beyond the brief map lookup.
type MemoryStore struct {
	// logs maps WindowKey.String() to its sliding log.
	logs map[string]*windowLog

	// clients indexes log keys by client for Reset.
	clients map[limits.ClientID]map[string]struct{}

	// mu protects logs and clients. Lock order is mu, then windowLog.mu.
	mu sync.RWMutex

	// maxKeys bounds the number of live logs.
	maxKeys int
}

// MemoryStoreConfig configures the memory store.
type MemoryStoreConfig struct {
	// MaxKeys is the maximum number of live window logs. When the cap is
	// reached, expired logs are swept; if none can be removed, new keys are
	// refused with limits.ErrStoreFull.
	//
	// MaxKeys is not a memory bound. A single log holds one timestamp per
	// request in its trailing window, denied requests included, so a client
	// flooding a day window grows that log until the flood ages out of it.
	// Expect roughly 24 bytes per retained request.
	// Default: 100,000
	MaxKeys int
}

type windowLog struct {
	mu         sync.Mutex
	client     limits.ClientID
	duration   time.Duration
	timestamps []time.Time

	// deleted is set under mu when the log has been removed from the store;
	// a holder that observes it must look the key up again.
	deleted bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 100000
	}

	return &MemoryStore{
		logs:    make(map[string]*windowLog),
		clients: make(map[limits.ClientID]map[string]struct{}),
		maxKeys: cfg.MaxKeys,
	}
}

// Increment trims and appends to one log.
func (m *MemoryStore) Increment(ctx context.Context, key limits.WindowKey, now time.Time, duration time.Duration) (Count, error) {
	if err := ctx.Err(); err != nil {
		return Count{}, storeError("increment", key.String(), err)
	}

	for {
		log, err := m.getOrCreate(key, duration, now)
		if err != nil {
			return Count{}, storeError("increment", key.String(), err)
		}

		log.mu.Lock()
		if log.deleted {
			log.mu.Unlock()
			continue
		}
		log.duration = duration
		log.trim(now)
		log.insert(now)
		c := log.count()
		log.mu.Unlock()

		return c, nil
	}
}

// IncrementBatch increments each key in turn. The memory store has no
// round trip to save, so the batch is not atomic across keys, only per key.
func (m *MemoryStore) IncrementBatch(ctx context.Context, now time.Time, batch []Increment) ([]Count, error) {
	counts := make([]Count, len(batch))
	for i, inc := range batch {
		c, err := m.Increment(ctx, inc.Key, now, inc.Duration)
		if err != nil {
			return nil, err
		}
		counts[i] = c
	}
	return counts, nil
}

// Peek counts the live timestamps of one log without modifying it.
func (m *MemoryStore) Peek(ctx context.Context, key limits.WindowKey, now time.Time, duration time.Duration) (Count, error) {
	if err := ctx.Err(); err != nil {
		return Count{}, storeError("peek", key.String(), err)
	}

	m.mu.RLock()
	log, ok := m.logs[key.String()]
	m.mu.RUnlock()
	if !ok {
		return Count{}, nil
	}

	log.mu.Lock()
	defer log.mu.Unlock()

	cutoff := now.Add(-duration)
	i := log.firstAfter(cutoff)
	if i == len(log.timestamps) {
		return Count{}, nil
	}
	return Count{Count: len(log.timestamps) - i, Oldest: log.timestamps[i]}, nil
}

// Reset removes every log belonging to client.
func (m *MemoryStore) Reset(ctx context.Context, client limits.ClientID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeError("reset", string(client), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.clients[client]
	for k := range keys {
		m.removeLocked(k)
	}
	return len(keys), nil
}

// Sweep removes logs with no timestamp left inside their window.
func (m *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeError("sweep", "", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sweepLocked(now), nil
}

// Ping always succeeds for the memory store.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases all logs.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logs = make(map[string]*windowLog)
	m.clients = make(map[limits.ClientID]map[string]struct{})
	return nil
}

// Len returns the current number of live logs.
// This is useful for monitoring and testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs)
}

func (m *MemoryStore) getOrCreate(key limits.WindowKey, duration time.Duration, now time.Time) (*windowLog, error) {
	k := key.String()

	m.mu.RLock()
	log, ok := m.logs[k]
	m.mu.RUnlock()
	if ok {
		return log, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if log, ok := m.logs[k]; ok {
		return log, nil
	}

	if len(m.logs) >= m.maxKeys {
		m.sweepLocked(now)
		if len(m.logs) >= m.maxKeys {
			return nil, limits.ErrStoreFull
		}
	}

	log = &windowLog{client: key.Client, duration: duration}
	m.logs[k] = log

	idx, ok := m.clients[key.Client]
	if !ok {
		idx = make(map[string]struct{})
		m.clients[key.Client] = idx
	}
	idx[k] = struct{}{}

	return log, nil
}

// sweepLocked removes expired logs. Caller must hold the write lock.
func (m *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for k, log := range m.logs {
		log.mu.Lock()
		expired := log.expired(now)
		log.mu.Unlock()

		if expired {
			m.removeLocked(k)
			removed++
		}
	}
	return removed
}

// removeLocked deletes one log and its index entry. Caller must hold the write lock.
func (m *MemoryStore) removeLocked(k string) {
	log, ok := m.logs[k]
	if !ok {
		return
	}

	log.mu.Lock()
	log.deleted = true
	log.timestamps = nil
	log.mu.Unlock()

	delete(m.logs, k)
	if idx, ok := m.clients[log.client]; ok {
		delete(idx, k)
		if len(idx) == 0 {
			delete(m.clients, log.client)
		}
	}
}

// firstAfter returns the index of the first timestamp after cutoff.
func (l *windowLog) firstAfter(cutoff time.Time) int {
	return sort.Search(len(l.timestamps), func(i int) bool {
		return l.timestamps[i].After(cutoff)
	})
}

// trim drops every timestamp at or before now-duration.
func (l *windowLog) trim(now time.Time) {
	i := l.firstAfter(now.Add(-l.duration))
	if i == 0 {
		return
	}
	l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
}

// insert keeps timestamps ordered; callers may race with slightly older clocks.
func (l *windowLog) insert(t time.Time) {
	i := len(l.timestamps)
	for i > 0 && l.timestamps[i-1].After(t) {
		i--
	}
	l.timestamps = append(l.timestamps, time.Time{})
	copy(l.timestamps[i+1:], l.timestamps[i:])
	l.timestamps[i] = t
}

func (l *windowLog) count() Count {
	if len(l.timestamps) == 0 {
		return Count{}
	}
	return Count{Count: len(l.timestamps), Oldest: l.timestamps[0]}
}

func (l *windowLog) expired(now time.Time) bool {
	n := len(l.timestamps)
	return n == 0 || !l.timestamps[n-1].After(now.Add(-l.duration))
}
