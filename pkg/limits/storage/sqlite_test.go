package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mercator-hq/sentinel/pkg/limits"
)

// TestSQLiteStore_IncrementAndPeek tests the basic sliding log operations.
func TestSQLiteStore_IncrementAndPeek(t *testing.T) {
	store, cleanup := newTestSQLiteStore(t)
	defer cleanup()

	ctx := context.Background()
	key := testKey("ip:1.2.3.4", "requests_per_minute")

	for i := 1; i <= 3; i++ {
		c, err := store.Increment(ctx, key, testEpoch.Add(time.Duration(i)*time.Second), time.Minute)
		if err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		if c.Count != i {
			t.Errorf("Expected count %d, got %d", i, c.Count)
		}
	}

	c, err := store.Peek(ctx, key, testEpoch.Add(3*time.Second), time.Minute)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if c.Count != 3 {
		t.Errorf("Expected count 3, got %d", c.Count)
	}
	if !c.Oldest.Equal(testEpoch.Add(time.Second)) {
		t.Errorf("Expected oldest %v, got %v", testEpoch.Add(time.Second), c.Oldest)
	}

	// The first timestamp leaves the window exactly one duration later.
	c, err = store.Increment(ctx, key, testEpoch.Add(time.Minute+time.Second), time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if c.Count != 3 {
		t.Errorf("Expected count 3 after trimming, got %d", c.Count)
	}
}

// TestSQLiteStore_PeekUnknownKey tests peeking a key that was never written.
func TestSQLiteStore_PeekUnknownKey(t *testing.T) {
	store, cleanup := newTestSQLiteStore(t)
	defer cleanup()

	c, err := store.Peek(context.Background(), testKey("ip:9.9.9.9", "w"), testEpoch, time.Minute)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if c.Count != 0 || !c.Oldest.IsZero() {
		t.Errorf("Expected empty count, got %+v", c)
	}
}

// TestSQLiteStore_IncrementBatch tests one transaction over several windows.
func TestSQLiteStore_IncrementBatch(t *testing.T) {
	store, cleanup := newTestSQLiteStore(t)
	defer cleanup()

	ctx := context.Background()
	batch := []Increment{
		{Key: testKey("user:1", "requests_per_minute"), Duration: time.Minute},
		{Key: testKey("user:1", "requests_per_hour"), Duration: time.Hour},
	}

	var counts []Count
	var err error
	for i := 0; i < 2; i++ {
		counts, err = store.IncrementBatch(ctx, testEpoch.Add(time.Duration(i)*time.Minute), batch)
		if err != nil {
			t.Fatalf("IncrementBatch failed: %v", err)
		}
	}

	if len(counts) != 2 {
		t.Fatalf("Expected 2 counts, got %d", len(counts))
	}
	if counts[0].Count != 1 {
		t.Errorf("Expected minute count 1, got %d", counts[0].Count)
	}
	if counts[1].Count != 2 {
		t.Errorf("Expected hour count 2, got %d", counts[1].Count)
	}
}

// TestSQLiteStore_Reset tests per-client reset and its idempotency.
func TestSQLiteStore_Reset(t *testing.T) {
	store, cleanup := newTestSQLiteStore(t)
	defer cleanup()

	ctx := context.Background()
	for _, w := range []string{"requests_per_minute", "requests_per_hour"} {
		for i := 0; i < 3; i++ {
			if _, err := store.Increment(ctx, testKey("user:42", w), testEpoch, time.Hour); err != nil {
				t.Fatalf("Increment failed: %v", err)
			}
		}
	}
	if _, err := store.Increment(ctx, testKey("user:7", "requests_per_minute"), testEpoch, time.Minute); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	removed, err := store.Reset(ctx, "user:42")
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 logs removed, got %d", removed)
	}

	removed, err = store.Reset(ctx, "user:42")
	if err != nil {
		t.Fatalf("Second reset failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Expected 0 logs removed on second reset, got %d", removed)
	}

	c, err := store.Peek(ctx, testKey("user:7", "requests_per_minute"), testEpoch, time.Minute)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if c.Count != 1 {
		t.Errorf("Expected other client untouched, got count %d", c.Count)
	}
}

// TestSQLiteStore_Sweep tests removal of expired rows.
func TestSQLiteStore_Sweep(t *testing.T) {
	store, cleanup := newTestSQLiteStore(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := store.Increment(ctx, testKey("ip:1.1.1.1", "m"), testEpoch, time.Minute); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if _, err := store.Increment(ctx, testKey("ip:1.1.1.1", "h"), testEpoch, time.Hour); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	removed, err := store.Sweep(ctx, testEpoch.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 expired row removed, got %d", removed)
	}

	c, err := store.Peek(ctx, testKey("ip:1.1.1.1", "h"), testEpoch.Add(2*time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if c.Count != 1 {
		t.Errorf("Expected hourly row to survive, got %d", c.Count)
	}
}

// TestSQLiteStore_Persistence tests that logs survive reopening the database.
func TestSQLiteStore_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persistence.db")
	ctx := context.Background()
	key := testKey("user:1", "requests_per_day")

	store1, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := store1.Increment(ctx, key, testEpoch, 24*time.Hour); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	store2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer store2.Close()

	c, err := store2.Peek(ctx, key, testEpoch.Add(time.Hour), 24*time.Hour)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if c.Count != 4 {
		t.Errorf("Expected 4 persisted timestamps, got %d", c.Count)
	}
}

// TestSQLiteStore_Concurrent tests that concurrent increments are not lost.
func TestSQLiteStore_Concurrent(t *testing.T) {
	store, cleanup := newTestSQLiteStore(t)
	defer cleanup()

	ctx := context.Background()
	key := testKey("ip:1.2.3.4", "w")

	const numGoroutines = 8
	const numOperations = 25

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				if _, err := store.Increment(ctx, key, testEpoch, time.Minute); err != nil {
					t.Errorf("Increment failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	c, err := store.Peek(ctx, key, testEpoch, time.Minute)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if c.Count != numGoroutines*numOperations {
		t.Errorf("Expected %d, got %d", numGoroutines*numOperations, c.Count)
	}
}

// TestSQLiteStore_Config tests constructor validation.
func TestSQLiteStore_Config(t *testing.T) {
	if _, err := NewSQLiteStore(""); err == nil {
		t.Error("Expected error for empty path")
	}

	_, err := NewSQLiteStoreWithConfig(SQLiteStoreConfig{
		Path:   filepath.Join(t.TempDir(), "x.db"),
		Driver: "postgres",
	})
	if err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

// TestSQLiteStore_Close tests idempotent close and errors after close.
func TestSQLiteStore_Close(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "close.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}

	_, err = store.Increment(context.Background(), testKey("ip:1.1.1.1", "w"), testEpoch, time.Minute)
	if err == nil {
		t.Fatal("Expected error after close")
	}
	if _, ok := err.(*limits.StoreError); !ok {
		t.Errorf("Expected *limits.StoreError, got %T", err)
	}
}

// newTestSQLiteStore creates a store in a temporary directory.
func newTestSQLiteStore(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStoreWithConfig(SQLiteStoreConfig{
		Path:        dbPath,
		Driver:      DriverModernc,
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-shm")
		os.Remove(dbPath + "-wal")
	}

	return store, cleanup
}
