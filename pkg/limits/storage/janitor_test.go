package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/sentinel/pkg/limits"
)

func TestJanitor_RunOnce(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()

	ctx := context.Background()
	if _, err := store.Increment(ctx, testKey("ip:1.1.1.1", "w"), testEpoch, time.Minute); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := limits.NewMetrics(reg)
	janitor := NewJanitor(store, "", metrics)
	janitor.now = func() time.Time { return testEpoch.Add(5 * time.Minute) }

	if removed := janitor.RunOnce(ctx); removed != 1 {
		t.Errorf("Expected 1 log removed, got %d", removed)
	}
	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d logs", store.Len())
	}

	expected := `
# HELP sentinel_admission_store_swept_total Total number of expired window keys removed by the janitor
# TYPE sentinel_admission_store_swept_total counter
sentinel_admission_store_swept_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "sentinel_admission_store_swept_total"); err != nil {
		t.Errorf("Unexpected swept metric: %v", err)
	}
}

func TestJanitor_StartStop(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()

	janitor := NewJanitor(store, "@every 1h", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := janitor.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !janitor.IsRunning() {
		t.Error("Expected janitor to be running")
	}
	if next := janitor.NextRun(); next == nil {
		t.Error("Expected a next run time")
	}
	if err := janitor.Start(ctx); err == nil {
		t.Error("Expected error when starting twice")
	}

	janitor.Stop()
	if janitor.IsRunning() {
		t.Error("Expected janitor to be stopped")
	}
	if next := janitor.NextRun(); next != nil {
		t.Errorf("Expected no next run after stop, got %v", next)
	}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		valid    bool
	}{
		{"@every 1m", true},
		{"*/5 * * * *", true},
		{"@hourly", true},
		{"every minute", false},
		{"* * *", false},
	}

	for _, tt := range tests {
		err := ValidateSchedule(tt.schedule)
		if tt.valid && err != nil {
			t.Errorf("Expected %q to be valid, got %v", tt.schedule, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("Expected %q to be invalid", tt.schedule)
		}
	}
}
