package config

import "time"

// Default values for configuration fields.
const (
	// Gateway defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 90 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576  // 1MB
	DefaultMaxBodyBytes    = 10485760 // 10MB

	// CORS defaults
	DefaultCORSMaxAge = 3600 // 1 hour

	// TLS defaults
	DefaultTLSMinVersion = "1.3"
	DefaultTLSClientAuth = "require"

	// Backend defaults
	DefaultBackendName    = "backend"
	DefaultBackendTimeout = 60 * time.Second
	DefaultBackendBurst   = 1
	DefaultBreakerTimeout = 30 * time.Second

	// Policy defaults
	DefaultPolicyMode            = "file"
	DefaultPolicyFilePath        = "./policy.yaml"
	DefaultPolicyDebounce        = 100 * time.Millisecond
	DefaultPolicyDocumentName    = "root"
	DefaultPolicyRefreshSchedule = "@every 30s"
	DefaultPolicyFetchAttempts   = 3

	// Store defaults
	DefaultStoreBackend      = "sqlite"
	DefaultSQLitePath        = "data/sluice.db"
	DefaultSQLiteBusyTimeout = 5 * time.Second
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPrefix       = "sluice:"

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultPrometheusPath      = "/metrics"
	DefaultMetricsNamespace    = "sluice"
	DefaultTracingSampler      = "ratio"
	DefaultTracingSamplingRate = 1.0
	DefaultTracingServiceName  = "sluice"
	DefaultTracingTimeout      = 10 * time.Second
	DefaultHealthPath          = "/health"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Gateway defaults
	if cfg.Gateway.ListenAddress == "" {
		cfg.Gateway.ListenAddress = DefaultListenAddress
	}
	if cfg.Gateway.ReadTimeout == 0 {
		cfg.Gateway.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Gateway.WriteTimeout == 0 {
		cfg.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Gateway.IdleTimeout == 0 {
		cfg.Gateway.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Gateway.ShutdownTimeout == 0 {
		cfg.Gateway.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Gateway.MaxHeaderBytes == 0 {
		cfg.Gateway.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Gateway.MaxBodyBytes == 0 {
		cfg.Gateway.MaxBodyBytes = DefaultMaxBodyBytes
	}
	applyCORSDefaults(&cfg.Gateway.CORS)
	if cfg.Gateway.TLS.MinVersion == "" {
		cfg.Gateway.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Gateway.TLS.ClientAuth == "" {
		cfg.Gateway.TLS.ClientAuth = DefaultTLSClientAuth
	}

	// Backend defaults
	if cfg.Backend.Name == "" {
		cfg.Backend.Name = DefaultBackendName
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}
	if cfg.Backend.RateLimit > 0 && cfg.Backend.Burst == 0 {
		cfg.Backend.Burst = DefaultBackendBurst
	}
	if cfg.Backend.Breaker.FailureThreshold > 0 && cfg.Backend.Breaker.Timeout == 0 {
		cfg.Backend.Breaker.Timeout = DefaultBreakerTimeout
	}

	// Policy defaults
	if cfg.Policy.Mode == "" {
		cfg.Policy.Mode = DefaultPolicyMode
	}
	if cfg.Policy.FilePath == "" {
		cfg.Policy.FilePath = DefaultPolicyFilePath
	}
	if cfg.Policy.Debounce == 0 {
		cfg.Policy.Debounce = DefaultPolicyDebounce
	}
	if cfg.Policy.DocumentName == "" {
		cfg.Policy.DocumentName = DefaultPolicyDocumentName
	}
	if cfg.Policy.RefreshSchedule == "" {
		cfg.Policy.RefreshSchedule = DefaultPolicyRefreshSchedule
	}
	if cfg.Policy.FetchAttempts == 0 {
		cfg.Policy.FetchAttempts = DefaultPolicyFetchAttempts
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Store.Redis.Prefix == "" {
		cfg.Store.Redis.Prefix = DefaultRedisPrefix
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Health.Path == "" {
		cfg.Telemetry.Health.Path = DefaultHealthPath
	}
}

// applyCORSDefaults fills the CORS lists. They only take effect when CORS
// is enabled.
func applyCORSDefaults(cors *CORSConfig) {
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

// Default returns a configuration with every default applied. The backend
// base URL is left empty and must be supplied before the result validates.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
