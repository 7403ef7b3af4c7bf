package config

import "time"

// Config is the root configuration structure for the sluice gateway.
// It contains the configuration sections for the HTTP gateway, the backend
// LLM provider, the root policy source, the credential and document store,
// and telemetry.
type Config struct {
	// Gateway contains HTTP server configuration including listen address,
	// timeouts, and request size limits.
	Gateway GatewayConfig `yaml:"gateway"`

	// Backend contains configuration for the upstream LLM provider that
	// DispatchToBackend forwards calls to.
	Backend BackendConfig `yaml:"backend"`

	// Policy contains configuration for where the root policy document is
	// loaded from and how it is refreshed.
	Policy PolicyConfig `yaml:"policy"`

	// Store contains configuration for the credential and configuration
	// document store.
	Store StoreConfig `yaml:"store"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// GatewayConfig contains configuration for the HTTP gateway server.
type GatewayConfig struct {
	// ListenAddress is the address and port for the gateway to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It must cover the backend timeout.
	// Default: 90s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request when
	// keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the size of a chat-completion request body.
	// Default: 10485760 (10MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`

	// TLS contains listener TLS configuration.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS configuration for the gateway listener.
type TLSConfig struct {
	// Enabled serves HTTPS instead of plain HTTP.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM-encoded certificate chain.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM-encoded private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the lowest accepted protocol version.
	// Options: "1.2", "1.3"
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ClientCAFile enables client certificate verification against the
	// PEM-encoded CA bundle.
	ClientCAFile string `yaml:"client_ca_file"`

	// ClientAuth controls client certificate handling when ClientCAFile is
	// set.
	// Options: "require", "verify_if_given"
	// Default: "require"
	ClientAuth string `yaml:"client_auth"`

	// Watch reloads the certificate when its files change.
	// Default: false
	Watch bool `yaml:"watch"`
}

// CORSConfig contains CORS configuration for the gateway.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// BackendConfig contains configuration for the upstream LLM provider.
type BackendConfig struct {
	// Name labels the backend in logs and metrics.
	// Default: "backend"
	Name string `yaml:"name"`

	// BaseURL is the provider's OpenAI-compatible API root
	// (e.g., "https://api.openai.com/v1"). Required.
	BaseURL string `yaml:"base_url"`

	// Timeout is the per-dispatch timeout.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the rate limiter bucket size.
	// Default: 1 when rate_limit is set
	Burst int `yaml:"burst"`

	// HealthCheckInterval enables periodic backend probing when positive.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// Breaker configures the dispatch circuit breaker.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Zero disables it.
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// Timeout is how long the breaker stays open before a trial request.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// PolicyConfig contains configuration for the root policy source.
type PolicyConfig struct {
	// Mode determines where the root policy document is loaded from.
	// Options: "file", "store"
	// Default: "file"
	Mode string `yaml:"mode"`

	// FilePath is the path to the YAML or JSON root document (file mode).
	// Default: "./policy.yaml"
	FilePath string `yaml:"file_path"`

	// Watch enables reloading the document when the file changes (file mode).
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce is the quiet period after a file event before reloading.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`

	// DocumentName is the name of the root document in the store (store mode).
	// Default: "root"
	DocumentName string `yaml:"document_name"`

	// RefreshSchedule is a cron spec for periodic refresh (store mode).
	// Default: "@every 30s"
	RefreshSchedule string `yaml:"refresh_schedule"`

	// FetchAttempts bounds retries of a failing store fetch (store mode).
	// Default: 3
	FetchAttempts uint `yaml:"fetch_attempts"`
}

// StoreConfig contains configuration for the credential and document store.
type StoreConfig struct {
	// Backend selects the store implementation.
	// Options: "memory", "sqlite", "redis"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite store configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Redis contains Redis store configuration.
	Redis RedisConfig `yaml:"redis"`
}

// SQLiteConfig contains SQLite store configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/sluice.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RedisConfig contains Redis store configuration.
type RedisConfig struct {
	// Addr is the Redis server address.
	// Default: "localhost:6379"
	Addr string `yaml:"addr"`

	// Password is the optional AUTH password.
	Password string `yaml:"password"`

	// DB is the database index.
	DB int `yaml:"db"`

	// Prefix namespaces every key and the change channel.
	// Default: "sluice:"
	Prefix string `yaml:"prefix"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health endpoint configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks credential-shaped values in log attributes.
	// Default: false
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether the Prometheus endpoint is served.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "sluice"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint (e.g., "localhost:4317").
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "sluice"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the OTLP connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health endpoint configuration.
type HealthConfig struct {
	// Path is the path for the health endpoint.
	// Default: "/health"
	Path string `yaml:"path"`

	// RequireHealthyBackend makes /health report 503 while the backend is
	// marked unhealthy.
	// Default: false
	RequireHealthyBackend bool `yaml:"require_healthy_backend"`
}
