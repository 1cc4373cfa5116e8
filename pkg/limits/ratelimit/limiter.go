package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/limits/storage"
)

// Defaults applied by NewLimiter.
const (
	DefaultStoreTimeout = 50 * time.Millisecond
	DefaultWarnInterval = 10 * time.Second
)

// Fail-open reasons reported to metrics.
const (
	ReasonTimeout    = "timeout"
	ReasonStoreError = "store_error"
)

// Config contains limiter settings.
type Config struct {
	// StoreTimeout bounds every store call made while deciding.
	// Default: 50ms
	StoreTimeout time.Duration

	// WarnInterval is the minimum spacing between fail-open warnings.
	// Default: 10s
	WarnInterval time.Duration
}

// Request is the input to Decide.
type Request struct {
	Client limits.ClientID
	Tier   limits.Tier

	// Policy is the effective policy; ignored when Whitelisted.
	Policy *limits.Policy

	// Whitelisted clients are admitted without touching the store.
	Whitelisted bool

	// Now overrides the limiter clock when non-zero.
	Now time.Time
}

// Limiter evaluates requests against sliding-log windows.
type Limiter struct {
	store   storage.Store
	timeout time.Duration

	metrics *limits.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	// warnings samples fail-open log lines.
	warnings *rate.Limiter

	now func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMetrics records decisions and store calls on m.
func WithMetrics(m *limits.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithLogger sets the logger used for fail-open warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTracer sets the tracer for decision spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(l *Limiter) {
		if tracer != nil {
			l.tracer = tracer
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter on top of store.
func NewLimiter(store storage.Store, cfg Config, opts ...Option) *Limiter {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.WarnInterval <= 0 {
		cfg.WarnInterval = DefaultWarnInterval
	}

	l := &Limiter{
		store:    store,
		timeout:  cfg.StoreTimeout,
		logger:   slog.Default().With("component", "ratelimit"),
		tracer:   otel.Tracer("sentinel/ratelimit"),
		warnings: rate.NewLimiter(rate.Every(cfg.WarnInterval), 1),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Decide increments every window of the request's policy and returns the
// verdict. It never returns a denial because of a store failure.
func (l *Limiter) Decide(ctx context.Context, req Request) *limits.Decision {
	d := &limits.Decision{
		Allowed: true,
		Client:  req.Client,
		Tier:    req.Tier,
	}

	if req.Whitelisted {
		d.Bypassed = true
		l.metrics.RecordDecision(d)
		return d
	}
	if req.Policy == nil || len(req.Policy.Windows) == 0 {
		l.metrics.RecordDecision(d)
		return d
	}
	d.Policy = req.Policy.ID

	ctx, span := l.tracer.Start(ctx, "ratelimit.Decide", trace.WithAttributes(
		attribute.String("sentinel.client", string(req.Client)),
		attribute.String("sentinel.tier", string(req.Tier)),
		attribute.String("sentinel.policy", req.Policy.ID),
	))
	defer span.End()

	now := req.Now
	if now.IsZero() {
		now = l.now()
	}

	batch := make([]storage.Increment, len(req.Policy.Windows))
	for i, w := range req.Policy.Windows {
		batch[i] = storage.Increment{
			Key:      limits.WindowKey{Client: req.Client, Policy: req.Policy.ID, Window: w.Name},
			Duration: w.Duration,
		}
	}

	counts, err := l.incrementBatch(ctx, now, batch)
	if err != nil {
		l.failOpen(ctx, d, err)
		span.SetAttributes(attribute.Bool("sentinel.fail_open", true))
		span.RecordError(err)
		l.metrics.RecordDecision(d)
		return d
	}

	d.Windows = make([]limits.WindowResult, len(req.Policy.Windows))
	for i, w := range req.Policy.Windows {
		d.Windows[i] = evaluate(w, counts[i], now)
		r := &d.Windows[i]
		if r.Violated && (d.Violated == nil || r.Window.Duration < d.Violated.Window.Duration) {
			d.Violated = r
		}
	}

	if d.Violated != nil {
		d.Allowed = false
		d.RetryAfter = d.Violated.RetryAfter
		span.SetAttributes(
			attribute.String("sentinel.window", d.Violated.Window.Name),
			attribute.Int64("sentinel.retry_after_ms", d.RetryAfter.Milliseconds()),
		)
	}
	span.SetAttributes(attribute.Bool("sentinel.allowed", d.Allowed))

	l.metrics.RecordDecision(d)
	return d
}

// Usage reports the current count of every window without incrementing.
// Unlike Decide, store failures are returned to the caller.
func (l *Limiter) Usage(ctx context.Context, client limits.ClientID, policy *limits.Policy) ([]limits.WindowResult, error) {
	ctx, span := l.tracer.Start(ctx, "ratelimit.Usage", trace.WithAttributes(
		attribute.String("sentinel.client", string(client)),
		attribute.String("sentinel.policy", policy.ID),
	))
	defer span.End()

	now := l.now()
	results := make([]limits.WindowResult, 0, len(policy.Windows))
	for _, w := range policy.Windows {
		key := limits.WindowKey{Client: client, Policy: policy.ID, Window: w.Name}

		c, err := l.peek(ctx, key, now, w.Duration)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		results = append(results, evaluate(w, c, now))
	}
	return results, nil
}

// Reset clears every counter of client and returns the number of window
// logs removed. Resetting an unknown client removes nothing.
func (l *Limiter) Reset(ctx context.Context, client limits.ClientID) (int, error) {
	ctx, span := l.tracer.Start(ctx, "ratelimit.Reset", trace.WithAttributes(
		attribute.String("sentinel.client", string(client)),
	))
	defer span.End()

	start := time.Now()
	removed, err := l.store.Reset(ctx, client)
	l.metrics.RecordStoreOperation("reset", time.Since(start), err)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	l.metrics.RecordReset()
	l.logger.Info("client counters reset", "client", client, "removed", removed)
	return removed, nil
}

func (l *Limiter) incrementBatch(ctx context.Context, now time.Time, batch []storage.Increment) ([]storage.Count, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	counts, err := l.store.IncrementBatch(ctx, now, batch)
	l.metrics.RecordStoreOperation("increment", time.Since(start), err)
	if err == nil && len(counts) != len(batch) {
		err = &limits.StoreError{Op: "increment", Err: errors.New("store returned a short batch")}
	}
	return counts, err
}

func (l *Limiter) peek(ctx context.Context, key limits.WindowKey, now time.Time, duration time.Duration) (storage.Count, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	c, err := l.store.Peek(ctx, key, now, duration)
	l.metrics.RecordStoreOperation("peek", time.Since(start), err)
	return c, err
}

func (l *Limiter) failOpen(ctx context.Context, d *limits.Decision, err error) {
	d.Allowed = true
	d.FailOpen = true
	d.Windows = nil

	reason := ReasonStoreError
	if errors.Is(err, context.DeadlineExceeded) {
		reason = ReasonTimeout
	}
	l.metrics.RecordFailOpen(reason)

	if l.warnings.Allow() {
		l.logger.WarnContext(ctx, "admission store unavailable, failing open",
			"client", d.Client,
			"policy", d.Policy,
			"reason", reason,
			"error", err,
		)
	}
}

func evaluate(w limits.Window, c storage.Count, now time.Time) limits.WindowResult {
	remaining := w.MaxRequests - c.Count
	if remaining < 0 {
		remaining = 0
	}
	return limits.WindowResult{
		Window:     w,
		Count:      c.Count,
		Remaining:  remaining,
		RetryAfter: c.RetryAfter(now, w.Duration),
		Violated:   c.Count > w.MaxRequests,
	}
}
