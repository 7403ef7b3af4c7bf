package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/sluice/pkg/config"
	"mercator-hq/sluice/pkg/control"
	"mercator-hq/sluice/pkg/source"
	"mercator-hq/sluice/pkg/telemetry/health"
	"mercator-hq/sluice/pkg/telemetry/metrics"
	"mercator-hq/sluice/pkg/telemetry/tracing"
)

// VersionPath serves build information.
const VersionPath = "/version"

// Options assembles a Server. Config and Source are required.
type Options struct {
	Config *config.Config
	Source source.Source

	// Env carries the pipeline's collaborators. The server instruments the
	// backend and adds the metrics and tracing observers.
	Env control.Env

	// TLS serves HTTPS when set.
	TLS *tls.Config

	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
	Health  *health.Checker
	Logger  *slog.Logger

	Version   string
	Commit    string
	BuildTime string
}

// Server is the gateway's HTTP server.
type Server struct {
	config     *config.Config
	handler    http.Handler
	httpServer *http.Server
	tls        *tls.Config
	logger     *slog.Logger

	mu           sync.Mutex
	running      bool
	shutdownOnce sync.Once
}

// NewServer wires the routes and middleware chain.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("gateway: config is required")
	}
	if opts.Source == nil {
		return nil, errors.New("gateway: policy source is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config

	env := opts.Env
	if env.Logger == nil {
		env.Logger = logger
	}
	if opts.Metrics != nil && env.Backend != nil {
		env.Backend = opts.Metrics.InstrumentBackend(env.Backend, cfg.Backend.Name)
	}
	var observers control.Observers
	if env.Observer != nil {
		observers = append(observers, env.Observer)
	}
	if opts.Metrics != nil {
		observers = append(observers, opts.Metrics)
	}
	if opts.Tracer != nil {
		observers = append(observers, opts.Tracer)
	}
	if len(observers) > 0 {
		env.Observer = observers
	}

	var chat http.Handler = NewChatHandler(ChatConfig{
		Source:       opts.Source,
		Env:          env,
		Metrics:      opts.Metrics,
		MaxBodyBytes: cfg.Gateway.MaxBodyBytes,
		Logger:       logger,
	})
	if opts.Tracer != nil {
		chat = opts.Tracer.HTTPMiddleware("chat.completions", chat)
	}

	mux := http.NewServeMux()
	mux.Handle(ChatCompletionsPath, chat)
	mux.Handle(VersionPath, health.VersionHandler(opts.Version, opts.Commit, opts.BuildTime))
	if opts.Health != nil {
		mux.Handle(cfg.Telemetry.Health.Path, opts.Health.Handler())
	}
	if cfg.Telemetry.Metrics.Enabled && opts.Metrics != nil {
		mux.Handle(cfg.Telemetry.Metrics.Path, opts.Metrics.Handler())
	}

	handler := Chain(mux,
		Recovery(logger),
		RequestID,
		Logging(logger),
		CORS(cfg.Gateway.CORS),
	)

	return &Server{
		config:  cfg,
		handler: handler,
		tls:     opts.TLS,
		logger:  logger,
	}, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Gateway.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Gateway.ListenAddress, err)
	}
	if s.tls != nil {
		ln = tls.NewListener(ln, s.tls)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("gateway: server is already running")
	}
	s.running = true
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.Gateway.ReadTimeout,
		WriteTimeout:   s.config.Gateway.WriteTimeout,
		IdleTimeout:    s.config.Gateway.IdleTimeout,
		MaxHeaderBytes: s.config.Gateway.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	srv := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "address", ln.Addr().String(), "tls", s.tls != nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

// Shutdown stops accepting connections and waits for in-flight calls.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		srv := s.httpServer
		s.mu.Unlock()
		if srv == nil {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.Gateway.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Gateway.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.logger.Info("gateway stopped")
	})
	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
