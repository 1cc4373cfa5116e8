package admission

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/limits/identity"
	"mercator-hq/sentinel/pkg/limits/policy"
	"mercator-hq/sentinel/pkg/limits/ratelimit"
	"mercator-hq/sentinel/pkg/limits/storage"
)

// Request is the admission-relevant view of an inbound request.
type Request struct {
	Path     string
	Identity identity.Request

	// Premium marks an authenticated principal entitled to the premium tier.
	Premium bool
}

// Manager admits or rejects requests according to the configured policies.
type Manager struct {
	protectedPrefix string
	exemptPaths     []string

	whitelist *identity.Whitelist
	registry  *policy.Registry
	limiter   *ratelimit.Limiter

	logger *slog.Logger
	tracer trace.Tracer
}

type options struct {
	metrics *limits.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*options)

// WithMetrics records decisions on m.
func WithMetrics(m *limits.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewManager builds a Manager from cfg. Invalid policies or whitelist
// entries are returned as *limits.ConfigurationError.
func NewManager(cfg *config.AdmissionConfig, store storage.Store, opts ...Option) (*Manager, error) {
	o := &options{
		logger: slog.Default(),
		tracer: otel.Tracer("sentinel/admission"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	registry, err := policy.NewRegistry(cfg.RegistryConfig())
	if err != nil {
		return nil, err
	}

	whitelist, err := identity.NewWhitelist(cfg.WhitelistAddresses, cfg.WhitelistNetworks)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewLimiter(store, ratelimit.Config{
		StoreTimeout: cfg.StoreTimeout,
		WarnInterval: cfg.WarnInterval,
	},
		ratelimit.WithMetrics(o.metrics),
		ratelimit.WithLogger(o.logger.With("component", "ratelimit")),
		ratelimit.WithTracer(o.tracer),
		ratelimit.WithClock(o.now),
	)

	exempt := make([]string, len(cfg.ExemptPaths))
	copy(exempt, cfg.ExemptPaths)

	return &Manager{
		protectedPrefix: cfg.ProtectedPrefix,
		exemptPaths:     exempt,
		whitelist:       whitelist,
		registry:        registry,
		limiter:         limiter,
		logger:          o.logger.With("component", "admission"),
		tracer:          o.tracer,
	}, nil
}

// Applies reports whether path is subject to admission control: it is under
// the protected prefix and not under an exempt path.
func (m *Manager) Applies(path string) bool {
	if !strings.HasPrefix(path, m.protectedPrefix) {
		return false
	}
	for _, p := range m.exemptPaths {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	return true
}

// Admit identifies the client, resolves its policy and counts the request.
func (m *Manager) Admit(ctx context.Context, req Request) *limits.Decision {
	ctx, span := m.tracer.Start(ctx, "admission.Admit", trace.WithAttributes(
		attribute.String("http.target", req.Path),
	))
	defer span.End()

	id := identity.Identify(req.Identity)
	if !id.Resolved {
		m.logger.DebugContext(ctx, "client address unresolvable, using shared bucket",
			"remote_addr", req.Identity.RemoteAddr,
			"forwarded_for", req.Identity.ForwardedFor,
		)
	}

	tier := policy.ResolveTier(req.Identity.Principal, req.Premium)
	res := m.registry.Resolve(req.Path, tier, m.whitelist.Allows(id))

	span.SetAttributes(
		attribute.String("sentinel.client", string(id.Client)),
		attribute.String("sentinel.policy_source", string(res.Source)),
	)

	return m.limiter.Decide(ctx, ratelimit.Request{
		Client:      id.Client,
		Tier:        res.Tier,
		Policy:      res.Policy,
		Whitelisted: res.Bypass,
	})
}

// Registry returns the policy registry.
func (m *Manager) Registry() *policy.Registry {
	return m.registry
}

// Whitelist returns the whitelist.
func (m *Manager) Whitelist() *identity.Whitelist {
	return m.whitelist
}

// Holder publishes the current Manager to concurrent readers.
type Holder struct {
	current atomic.Pointer[Manager]
}

// NewHolder creates a holder serving m.
func NewHolder(m *Manager) *Holder {
	h := &Holder{}
	h.current.Store(m)
	return h
}

// Load returns the current Manager.
func (h *Holder) Load() *Manager {
	return h.current.Load()
}

// Swap replaces the current Manager and returns the previous one.
func (h *Holder) Swap(m *Manager) *Manager {
	return h.current.Swap(m)
}
