package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/limits/admission"
	"mercator-hq/sentinel/pkg/limits/storage"
	"mercator-hq/sentinel/pkg/server"
	"mercator-hq/sentinel/pkg/telemetry/logging"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
	"mercator-hq/sentinel/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	watch         bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the admission gateway",
	Long: `Start the admission gateway with the specified configuration.

The server listens on the configured address, applies admission control to
requests under the protected prefix and proxies admitted requests to the
upstream service.

Examples:
  # Start with built-in defaults
  sentinel run

  # Start with custom config
  sentinel run --config /etc/sentinel/config.yaml

  # Override listen address
  sentinel run --listen 0.0.0.0:8080

  # Reload policies when the config file changes
  sentinel run --config config.yaml --watch

  # Validate config and open the store without starting the server
  sentinel run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVarP(&runFlags.watch, "watch", "w", false, "reload admission policies when the config file changes")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and open the store without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	if runFlags.watch && cfgFile == "" {
		return cli.NewConfigError("config", "--watch requires --config")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	config.SetConfig(cfg)

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		Writer:    os.Stdout,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging.level", err.Error())
	}
	slog.SetDefault(logger)

	out := cmd.OutOrStdout()
	printBanner(out, cfg)

	store, err := storage.Open(cfg.Storage.StoreConfig())
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err))
	}
	defer store.Close()
	fmt.Fprintf(out, "✓ Counter store opened (%s)\n", cfg.Storage.Backend)

	if runFlags.dryRun {
		pingCtx, cancel := context.WithTimeout(cmd.Context(), cfg.Telemetry.Health.CheckTimeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			return cli.NewCommandError("run", fmt.Errorf("counter store unreachable: %w", err))
		}
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	collector := metrics.NewCollector(nil)
	admissionMetrics := limits.NewMetrics(collector.Registry())

	manager, err := newManager(cfg, store, admissionMetrics, logger)
	if err != nil {
		return cli.NewConfigLoadError(err)
	}
	holder := admission.NewHolder(manager)
	fmt.Fprintf(out, "✓ Admission policies loaded (%d policies)\n", len(manager.Registry().Policies()))

	srv, err := server.NewServer(cfg, server.Deps{
		Holder:    holder,
		Store:     store,
		Collector: collector,
		Tracer:    tracer,
		Logger:    logger,
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if storage.NeedsSweep(cfg.Storage.Backend) {
		janitor := storage.NewJanitor(store, cfg.Storage.SweepSchedule, admissionMetrics)
		if err := janitor.Start(gctx); err != nil {
			return cli.NewCommandError("run", err)
		}
		defer janitor.Stop()
	}

	var watcher *config.Watcher
	if runFlags.watch {
		watcher, err = config.NewWatcher(cfgFile, logger)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
	}

	g.Go(func() error {
		return srv.Start(gctx)
	})

	if watcher != nil {
		g.Go(func() error {
			return watcher.Watch(gctx, func(next *config.Config) {
				applyReload(cfg, next, holder, store, admissionMetrics, logger)
			})
		})
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Health endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Health.LivenessPath)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigLoadError(err)
	}
	return cfg, nil
}

func newManager(cfg *config.Config, store storage.Store, m *limits.Metrics, logger *slog.Logger) (*admission.Manager, error) {
	return admission.NewManager(&cfg.Admission, store,
		admission.WithMetrics(m),
		admission.WithLogger(logger),
	)
}

// applyReload swaps in a manager built from next. Only the admission section
// is reloaded; the rest is fixed for the life of the process.
func applyReload(current, next *config.Config, holder *admission.Holder, store storage.Store, m *limits.Metrics, logger *slog.Logger) {
	if !reflect.DeepEqual(current.Storage, next.Storage) {
		logger.Warn("storage changes require a restart; applying admission changes only")
	}

	manager, err := newManager(next, store, m, logger)
	if err != nil {
		logger.Error("admission reload rejected, keeping current policies", "error", err)
		return
	}

	holder.Swap(manager)
	config.SetConfig(next)
	logger.Info("admission policies reloaded", "policies", len(manager.Registry().Policies()))
}

func printBanner(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "Sentinel v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	}
	fmt.Fprintln(out, "✓ Configuration loaded")

	if cfg.Server.UpstreamURL == "" {
		slog.Warn("no upstream configured; admitted requests will receive 404")
	}
	slog.Debug("admission settings",
		"protected_prefix", cfg.Admission.ProtectedPrefix,
		"backend", cfg.Storage.Backend,
		"admin_enabled", cfg.Admin.Enabled,
	)
}
