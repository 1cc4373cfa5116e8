package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/sentinel/pkg/limits"
)

var testEpoch = time.Unix(1700000000, 0)

func testKey(client, window string) limits.WindowKey {
	return limits.WindowKey{Client: limits.ClientID(client), Policy: "default", Window: window}
}

func TestMemoryStore_IncrementCounts(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()

	ctx := context.Background()
	key := testKey("ip:1.2.3.4", "requests_per_minute")

	for i := 1; i <= 5; i++ {
		now := testEpoch.Add(time.Duration(i) * time.Second)
		c, err := store.Increment(ctx, key, now, time.Minute)
		if err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		if c.Count != i {
			t.Errorf("Expected count %d, got %d", i, c.Count)
		}
		if !c.Oldest.Equal(testEpoch.Add(time.Second)) {
			t.Errorf("Expected oldest %v, got %v", testEpoch.Add(time.Second), c.Oldest)
		}
	}
}

func TestMemoryStore_TrimsExpiredTimestamps(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()

	ctx := context.Background()
	key := testKey("ip:1.2.3.4", "requests_per_minute")

	for i := 0; i < 3; i++ {
		if _, err := store.Increment(ctx, key, testEpoch.Add(time.Duration(i)*time.Second), time.Minute); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
	}

	// Exactly one duration after the first request: that timestamp is gone.
	c, err := store.Increment(ctx, key, testEpoch.Add(time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if c.Count != 3 {
		t.Errorf("Expected count 3 after trimming one timestamp, got %d", c.Count)
	}
	if !c.Oldest.Equal(testEpoch.Add(time.Second)) {
		t.Errorf("Expected oldest %v, got %v", testEpoch.Add(time.Second), c.Oldest)
	}

	// Long after: behaves like a new client.
	c, err = store.Increment(ctx, key, testEpoch.Add(10*time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if c.Count != 1 {
		t.Errorf("Expected count 1 after idle window, got %d", c.Count)
	}
}

func TestMemoryStore_PeekDoesNotMutate(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()

	ctx := context.Background()
	key := testKey("ip:1.2.3.4", "requests_per_minute")

	c, err := store.Peek(ctx, key, testEpoch, time.Minute)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if c.Count != 0 || !c.Oldest.IsZero() {
		t.Errorf("Expected empty count for unknown key, got %+v", c)
	}
	if store.Len() != 0 {
		t.Errorf("Expected Peek not to create a log, got %d logs", store.Len())
	}

	for i := 0; i < 2; i++ {
		if _, err := store.Increment(ctx, key, testEpoch.Add(time.Duration(i)*time.Second), time.Minute); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		c, err = store.Peek(ctx, key, testEpoch.Add(2*time.Second), time.Minute)
		if err != nil {
			t.Fatalf("Peek failed: %v", err)
		}
		if c.Count != 2 {
			t.Errorf("Expected count 2, got %d", c.Count)
		}
	}

	// Peek past the first timestamp's expiry trims only the view.
	c, err = store.Peek(ctx, key, testEpoch.Add(time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if c.Count != 1 {
		t.Errorf("Expected count 1, got %d", c.Count)
	}
	c, err = store.Peek(ctx, key, testEpoch.Add(2*time.Second), time.Minute)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if c.Count != 2 {
		t.Errorf("Expected Peek to leave both timestamps, got %d", c.Count)
	}
}

func TestMemoryStore_Reset(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()

	ctx := context.Background()
	client := "user:42"

	for _, w := range []string{"requests_per_minute", "requests_per_hour"} {
		if _, err := store.Increment(ctx, testKey(client, w), testEpoch, time.Hour); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
	}
	if _, err := store.Increment(ctx, testKey("user:7", "requests_per_minute"), testEpoch, time.Minute); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	removed, err := store.Reset(ctx, limits.ClientID(client))
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 logs removed, got %d", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Expected other client's log to survive, got %d logs", store.Len())
	}

	// Idempotent on unknown and already-reset clients
	for _, c := range []string{client, "ip:never-seen"} {
		removed, err = store.Reset(ctx, limits.ClientID(c))
		if err != nil {
			t.Errorf("Reset(%s) failed: %v", c, err)
		}
		if removed != 0 {
			t.Errorf("Expected 0 logs removed for %s, got %d", c, removed)
		}
	}

	c, err := store.Increment(ctx, testKey(client, "requests_per_minute"), testEpoch, time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if c.Count != 1 {
		t.Errorf("Expected fresh count 1 after reset, got %d", c.Count)
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()

	ctx := context.Background()

	if _, err := store.Increment(ctx, testKey("ip:1.1.1.1", "requests_per_minute"), testEpoch, time.Minute); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if _, err := store.Increment(ctx, testKey("ip:1.1.1.1", "requests_per_hour"), testEpoch, time.Hour); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	removed, err := store.Sweep(ctx, testEpoch.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 expired log removed, got %d", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Expected hourly log to survive, got %d logs", store.Len())
	}

	removed, err = store.Reset(ctx, "ip:1.1.1.1")
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected client index to track the surviving log, got %d", removed)
	}
}

func TestMemoryStore_MaxKeys(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{MaxKeys: 2})
	defer store.Close()

	ctx := context.Background()

	for _, c := range []string{"ip:1.1.1.1", "ip:2.2.2.2"} {
		if _, err := store.Increment(ctx, testKey(c, "w"), testEpoch, time.Minute); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
	}

	_, err := store.Increment(ctx, testKey("ip:3.3.3.3", "w"), testEpoch, time.Minute)
	if !errors.Is(err, limits.ErrStoreFull) {
		t.Errorf("Expected ErrStoreFull, got %v", err)
	}
	if !errors.Is(err, limits.ErrStoreUnavailable) {
		t.Errorf("Expected store error to match ErrStoreUnavailable, got %v", err)
	}

	// Once the existing logs expire, the cap makes room by sweeping.
	if _, err := store.Increment(ctx, testKey("ip:3.3.3.3", "w"), testEpoch.Add(2*time.Minute), time.Minute); err != nil {
		t.Errorf("Expected increment to succeed after expiry, got %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 log after sweep, got %d", store.Len())
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Increment(ctx, testKey("ip:1.1.1.1", "w"), testEpoch, time.Minute)
	if !errors.Is(err, limits.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected wrapped context.Canceled, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Expected no log to be created, got %d", store.Len())
	}
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()

	ctx := context.Background()
	key := testKey("ip:1.2.3.4", "requests_per_minute")

	const numGoroutines = 20
	const numOperations = 50

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				_, _ = store.Increment(ctx, key, testEpoch, time.Minute)
			}
		}()
	}
	wg.Wait()

	c, err := store.Peek(ctx, key, testEpoch, time.Minute)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if c.Count != numGoroutines*numOperations {
		t.Errorf("Expected %d requests counted, got %d", numGoroutines*numOperations, c.Count)
	}
}

func TestMemoryStore_SlidingWindowHasNoBoundaryDoubling(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()

	ctx := context.Background()
	key := testKey("ip:1.2.3.4", "w")
	const limit = 5

	// Requests every 7 seconds for five minutes; count admissions per any
	// 60 second interval ending at a request.
	var admitted []time.Time
	for s := 0; s < 300; s += 7 {
		now := testEpoch.Add(time.Duration(s) * time.Second)
		c, err := store.Increment(ctx, key, now, time.Minute)
		if err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		if c.Count <= limit {
			admitted = append(admitted, now)
		}
	}

	for i, end := range admitted {
		n := 0
		for _, t0 := range admitted[:i+1] {
			if end.Sub(t0) < time.Minute {
				n++
			}
		}
		if n > limit {
			t.Fatalf("Expected at most %d admissions in the minute ending %v, got %d", limit, end, n)
		}
	}
}

func TestCount_RetryAfter(t *testing.T) {
	tests := []struct {
		name     string
		count    Count
		now      time.Time
		expected time.Duration
	}{
		{"empty", Count{}, testEpoch, 0},
		{"fresh", Count{Count: 1, Oldest: testEpoch}, testEpoch, time.Minute},
		{"partial", Count{Count: 3, Oldest: testEpoch}, testEpoch.Add(45 * time.Second), 15 * time.Second},
		{"expired", Count{Count: 1, Oldest: testEpoch}, testEpoch.Add(2 * time.Minute), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.count.RetryAfter(tt.now, time.Minute)
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}
