package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"mercator-hq/sluice/pkg/cli"
	"mercator-hq/sluice/pkg/config"
	"mercator-hq/sluice/pkg/control"
	"mercator-hq/sluice/pkg/gateway"
	"mercator-hq/sluice/pkg/providers"
	securityTLS "mercator-hq/sluice/pkg/security/tls"
	"mercator-hq/sluice/pkg/source"
	"mercator-hq/sluice/pkg/store"
	"mercator-hq/sluice/pkg/telemetry/health"
	"mercator-hq/sluice/pkg/telemetry/logging"
	"mercator-hq/sluice/pkg/telemetry/metrics"
	"mercator-hq/sluice/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

The gateway serves POST /v1/chat/completions and runs every request through
the root policy before it reaches the backend provider.

Examples:
  # Start with default config
  sluice run

  # Start with custom config
  sluice run --config /etc/sluice/config.yaml

  # Override listen address
  sluice run --listen 0.0.0.0:8080

  # Validate config and the policy document without starting
  sluice run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:         cfg.Telemetry.Logging.Level,
		Format:        cfg.Telemetry.Logging.Format,
		AddSource:     cfg.Telemetry.Logging.AddSource,
		RedactSecrets: cfg.Telemetry.Logging.RedactSecrets,
		Writer:        os.Stdout,
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	slog.SetDefault(logger)

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		if cfg.Policy.Mode == "file" {
			if _, err := loadPolicyFile(control.DefaultLoader(), cfg.Policy.FilePath); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Policy document valid (%s)\n", cfg.Policy.FilePath)
		}
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := cli.SetupSignalHandler(parent)
	defer stop()

	printBanner(cfg)

	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.Tracing.Timeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, registry)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	fmt.Printf("✓ Store opened (%s)\n", cfg.Store.Backend)

	backend, err := providers.NewHTTPBackend(backendConfig(&cfg.Backend), logger)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	defer backend.Close()
	if cfg.Backend.HealthCheckInterval > 0 {
		backend.StartHealthChecker(ctx)
		go reportBackendHealth(ctx, backend, collector, cfg.Backend.HealthCheckInterval)
	}
	fmt.Printf("✓ Backend configured (%s → %s)\n", backend.Name(), cfg.Backend.BaseURL)

	src, err := startSource(ctx, cfg, st, collector, logger)
	if err != nil {
		return err
	}
	if snap, ok := src.Snapshot(); ok {
		fmt.Printf("✓ Policy loaded (%s, revision %s)\n", snap.Policy.Name(), snap.Revision)
	} else {
		fmt.Println("! No policy installed yet; requests are refused until one loads")
	}

	checker := health.New(Version, 0)
	checker.RegisterCheck("policy", true, gateway.PolicyCheck(src))
	checker.RegisterCheck("backend", cfg.Telemetry.Health.RequireHealthyBackend, gateway.BackendCheck(backend))

	tlsConfig, err := setupTLS(ctx, &cfg.Gateway.TLS, checker, logger)
	if err != nil {
		return err
	}

	srv, err := gateway.NewServer(gateway.Options{
		Config: cfg,
		Source: src,
		Env: control.Env{
			Credentials: st,
			Configs:     st,
			Backend:     backend,
			Logger:      logger,
		},
		TLS:       tlsConfig,
		Metrics:   collector,
		Tracer:    tracer,
		Health:    checker,
		Logger:    logger,
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	fmt.Printf("✓ Listening on %s\n", cfg.Gateway.ListenAddress)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("gateway stopped: %w", err)
	}
	fmt.Println("✓ Shutdown complete")
	return nil
}

// loadRunConfig loads the configuration and applies the run flags.
func loadRunConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	cfg := config.GetConfig()

	if runFlags.listenAddress != "" {
		cfg.Gateway.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.listenAddress != "" || runFlags.logLevel != "" {
		if err := config.Validate(cfg); err != nil {
			return nil, cli.NewConfigError(cfgFile, err)
		}
	}
	return cfg, nil
}

// setupTLS loads the serving certificate and registers its health check.
// It returns nil when TLS is disabled.
func setupTLS(ctx context.Context, cfg *config.TLSConfig, checker *health.Checker, logger *slog.Logger) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	certs := securityTLS.NewReloader(cfg.CertFile, cfg.KeyFile, logger)
	if err := certs.Load(); err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	if cfg.Watch {
		go func() {
			if err := certs.Watch(ctx); err != nil {
				logger.Error("certificate watcher stopped", "error", err)
			}
		}()
	}
	tlsConfig, err := securityTLS.ServerConfig(cfg, certs)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	checker.RegisterCheck("tls", false, certs.Check)
	fmt.Printf("✓ TLS enabled (minimum version %s)\n", cfg.MinVersion)
	return tlsConfig, nil
}

// backendConfig maps the backend section onto the provider configuration.
func backendConfig(cfg *config.BackendConfig) providers.BackendConfig {
	return providers.BackendConfig{
		Name:                cfg.Name,
		BaseURL:             cfg.BaseURL,
		Timeout:             cfg.Timeout,
		HealthCheckInterval: cfg.HealthCheckInterval,
		RateLimit:           cfg.RateLimit,
		Burst:               cfg.Burst,
		Breaker: providers.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Timeout:          cfg.Breaker.Timeout,
		},
	}
}

// openStore opens the configured credential and document store.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		st, err := store.NewSQLiteStoreWithConfig(store.SQLiteConfig{
			Path:        cfg.Store.SQLite.Path,
			BusyTimeout: cfg.Store.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, nil
	case "redis":
		st, err := store.NewRedisStore(ctx, store.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open redis store: %w", err)
		}
		return st, nil
	default:
		return nil, cli.NewConfigError(cfgFile, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend))
	}
}

// startSource loads the root policy and starts its refresh loop.
//
// A file document that fails to load aborts startup. In store mode the
// gateway starts anyway and serves 503 until the document appears.
func startSource(ctx context.Context, cfg *config.Config, st store.Store, collector *metrics.Collector, logger *slog.Logger) (source.Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Policy.Mode {
	case "file":
		fs := source.NewFileSource(source.FileConfig{
			Path:     cfg.Policy.FilePath,
			Debounce: cfg.Policy.Debounce,
			OnReload: reloadHook("file", collector),
		}, logger)
		if _, err := fs.Load(ctx); err != nil {
			return nil, &cli.InvalidDocumentError{Path: cfg.Policy.FilePath, Err: err}
		}
		if cfg.Policy.Watch {
			go func() {
				if err := fs.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("policy watcher stopped", "error", err)
				}
			}()
		}
		return fs, nil

	case "store":
		ss, err := source.NewStoreSource(source.StoreConfig{
			Store:    st,
			Name:     cfg.Policy.DocumentName,
			Schedule: cfg.Policy.RefreshSchedule,
			Attempts: cfg.Policy.FetchAttempts,
			OnReload: reloadHook("store", collector),
		}, logger)
		if err != nil {
			return nil, cli.NewConfigError(cfgFile, err)
		}
		if _, err := ss.Load(ctx); err != nil {
			logger.Warn("initial policy load failed", "document", cfg.Policy.DocumentName, "error", err)
		}
		go func() {
			if err := ss.Run(ctx); err != nil {
				logger.Error("policy refresh stopped", "error", err)
			}
		}()
		return ss, nil

	default:
		return nil, cli.NewConfigError(cfgFile, fmt.Errorf("unsupported policy mode %q", cfg.Policy.Mode))
	}
}

func reloadHook(kind string, collector *metrics.Collector) source.ReloadFunc {
	return func(_ source.Snapshot, err error) {
		collector.RecordPolicyReload(kind, err)
	}
}

// reportBackendHealth mirrors the backend's health into the metrics gauge.
func reportBackendHealth(ctx context.Context, backend *providers.HTTPBackend, collector *metrics.Collector, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		collector.UpdateBackendHealth(backend.Name(), backend.IsHealthy())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Sluice v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	slog.Debug("policy source", "mode", cfg.Policy.Mode, "origin", policyOrigin(&cfg.Policy))
	slog.Debug("store", "backend", cfg.Store.Backend)
	if verbose {
		fmt.Printf("Policy: %s\n", policyOrigin(&cfg.Policy))
		fmt.Printf("Metrics: %t, tracing: %t\n", cfg.Telemetry.Metrics.Enabled, cfg.Telemetry.Tracing.Enabled)
	}
}

func policyOrigin(cfg *config.PolicyConfig) string {
	if cfg.Mode == "store" {
		return "store:" + cfg.DocumentName
	}
	if cfg.Watch {
		return cfg.FilePath + " (watched)"
	}
	return cfg.FilePath
}
