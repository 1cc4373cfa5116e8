package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/sentinel/pkg/limits"
)

// DefaultSweepSchedule runs a sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// Janitor runs Store.Sweep on a cron schedule so idle logs do not
// accumulate in stores without native expiry.
type Janitor struct {
	store    Store
	schedule string
	metrics  *limits.Metrics
	now      func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewJanitor creates a janitor for store. An empty schedule uses
// DefaultSweepSchedule; metrics may be nil.
func NewJanitor(store Store, schedule string, metrics *limits.Metrics) *Janitor {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Janitor{
		store:    store,
		schedule: schedule,
		metrics:  metrics,
		now:      time.Now,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "storage.janitor"),
	}
}

// ValidateSchedule reports whether schedule is a standard cron expression
// or an "@every"/"@hourly" style descriptor.
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return nil
}

// Start schedules the sweep and returns immediately. The janitor stops
// when ctx is cancelled or Stop is called.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor already running")
	}

	if err := ValidateSchedule(j.schedule); err != nil {
		return err
	}

	if _, err := j.cron.AddFunc(j.schedule, func() {
		j.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	j.cron.Start()
	j.running = true

	j.logger.Info("store janitor started", "schedule", j.schedule)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	return nil
}

// RunOnce performs a single sweep and returns the number of entries removed.
func (j *Janitor) RunOnce(ctx context.Context) int {
	start := time.Now()
	removed, err := j.store.Sweep(ctx, j.now())
	j.metrics.RecordStoreOperation("sweep", time.Since(start), err)
	if err != nil {
		j.logger.Warn("store sweep failed", "error", err)
		return 0
	}

	j.metrics.RecordSweep(removed)
	if m, ok := j.store.(*MemoryStore); ok {
		j.metrics.UpdateStoreKeys(m.Len())
	}

	if removed > 0 {
		j.logger.Debug("store sweep completed", "removed", removed)
	}
	return removed
}

// Stop stops the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		<-j.cron.Stop().Done()
		j.running = false
		j.logger.Info("store janitor stopped")
	}
}

// IsRunning returns true if the janitor is scheduled.
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// NextRun returns the next scheduled sweep, or nil when not running.
func (j *Janitor) NextRun() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries := j.cron.Entries()
	if !j.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
