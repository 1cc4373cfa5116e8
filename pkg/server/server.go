package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/limits/admission"
	"mercator-hq/sentinel/pkg/proxy"
	"mercator-hq/sentinel/pkg/proxy/middleware"
	"mercator-hq/sentinel/pkg/security/auth"
	"mercator-hq/sentinel/pkg/telemetry/health"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
	"mercator-hq/sentinel/pkg/telemetry/tracing"
)

// Deps are the long-lived components the server routes requests through.
type Deps struct {
	// Holder serves the current admission manager. Required.
	Holder *admission.Holder

	// Store is pinged by the readiness probe. Optional.
	Store health.Pinger

	// Collector serves the metrics endpoint and instruments gateway
	// traffic. Optional.
	Collector *metrics.Collector

	// Tracer opens a server span per gateway request. Optional.
	Tracer *tracing.Tracer

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Build information served on /version.
	Version   string
	Commit    string
	BuildTime string
}

// Server is the admission gateway HTTP server.
type Server struct {
	config       *config.Config
	deps         Deps
	logger       *slog.Logger
	handler      http.Handler
	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer builds the router. It fails when the upstream URL is invalid or
// no admission manager is provided.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Holder == nil || deps.Holder.Load() == nil {
		return nil, errors.New("admission manager is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: deps.Logger.With("component", "server"),
	}

	handler, err := s.setupRoutes()
	if err != nil {
		return nil, err
	}
	s.handler = handler
	return s, nil
}

// Start listens on the configured address and blocks until ctx is
// cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and blocks until ctx is cancelled or the
// server fails. Cancelling ctx triggers a graceful shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting admission gateway",
			"address", ln.Addr().String(),
			"upstream", s.config.Server.UpstreamURL,
			"admin_enabled", s.config.Admin.Enabled,
		)

		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		if !ok {
			return nil
		}
		return err
	}
}

// Shutdown gracefully shuts down the server, waiting up to the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		srv := s.httpServer
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("admission gateway stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures the router. Probes, metrics and version are served
// outside the gateway chain; everything else passes through
// tracing → metrics → logging → auth → admission → upstream, and the admin
// API shares the chain up to auth.
func (s *Server) setupRoutes() (http.Handler, error) {
	upstream, err := proxy.NewUpstream(s.config.Server.UpstreamURL, s.deps.Logger)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery, middleware.RequestID)

	hc := s.config.Telemetry.Health
	checker := health.New(hc.CheckTimeout)
	if s.deps.Store != nil {
		checker.RegisterCheck("store", health.PingCheck(s.deps.Store))
	}
	r.Handle(hc.LivenessPath, checker.LivenessHandler())
	r.Handle(hc.ReadinessPath, checker.ReadinessHandler())
	r.Handle("/version", health.VersionHandler(s.deps.Version, s.deps.Commit, s.deps.BuildTime))

	if s.config.Telemetry.Metrics.Enabled && s.deps.Collector != nil {
		r.Handle(s.config.Telemetry.Metrics.Path, s.deps.Collector.Handler())
	}

	authenticator := auth.NewAuthenticator(&s.config.Security)

	if s.config.Admin.Enabled {
		admin := NewAdminRouter(s.deps.Holder, s.deps.Logger)
		r.Mount(s.config.Admin.PathPrefix, s.instrument(authenticator.Handle(admin)))
	}

	gateway := authenticator.Handle(middleware.Admission(s.deps.Holder)(upstream))
	r.Handle("/*", s.instrument(gateway))

	return r, nil
}

// instrument wraps h with tracing, metrics and request logging.
func (s *Server) instrument(h http.Handler) http.Handler {
	h = middleware.Logging(s.deps.Logger)(h)
	if s.deps.Collector != nil {
		h = s.deps.Collector.Middleware(h)
	}
	if s.deps.Tracer != nil {
		h = s.deps.Tracer.Middleware(h)
	}
	return h
}
