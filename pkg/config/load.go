package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SLUICE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention SLUICE_SECTION_FIELD (e.g., SLUICE_GATEWAY_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
//
// Validation runs once, after the overrides, so a required value such as
// backend.base_url may come from the environment alone.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// decodeFile reads and parses path and applies defaults.
func decodeFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format SLUICE_SECTION_FIELD. Values that fail
// to parse are ignored.
func applyEnvOverrides(cfg *Config) {
	// Gateway overrides
	envString("GATEWAY_LISTEN_ADDRESS", &cfg.Gateway.ListenAddress)
	envDuration("GATEWAY_READ_TIMEOUT", &cfg.Gateway.ReadTimeout)
	envDuration("GATEWAY_WRITE_TIMEOUT", &cfg.Gateway.WriteTimeout)
	envDuration("GATEWAY_IDLE_TIMEOUT", &cfg.Gateway.IdleTimeout)
	envDuration("GATEWAY_SHUTDOWN_TIMEOUT", &cfg.Gateway.ShutdownTimeout)
	envInt("GATEWAY_MAX_HEADER_BYTES", &cfg.Gateway.MaxHeaderBytes)
	if val := os.Getenv(EnvPrefix + "GATEWAY_MAX_BODY_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Gateway.MaxBodyBytes = i
		}
	}
	envBool("GATEWAY_CORS_ENABLED", &cfg.Gateway.CORS.Enabled)
	envBool("GATEWAY_TLS_ENABLED", &cfg.Gateway.TLS.Enabled)
	envString("GATEWAY_TLS_CERT_FILE", &cfg.Gateway.TLS.CertFile)
	envString("GATEWAY_TLS_KEY_FILE", &cfg.Gateway.TLS.KeyFile)
	envString("GATEWAY_TLS_CLIENT_CA_FILE", &cfg.Gateway.TLS.ClientCAFile)

	// Backend overrides
	envString("BACKEND_NAME", &cfg.Backend.Name)
	envString("BACKEND_BASE_URL", &cfg.Backend.BaseURL)
	envDuration("BACKEND_TIMEOUT", &cfg.Backend.Timeout)
	if val := os.Getenv(EnvPrefix + "BACKEND_RATE_LIMIT"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Backend.RateLimit = f
		}
	}
	envInt("BACKEND_BURST", &cfg.Backend.Burst)
	envDuration("BACKEND_HEALTH_CHECK_INTERVAL", &cfg.Backend.HealthCheckInterval)
	if val := os.Getenv(EnvPrefix + "BACKEND_BREAKER_FAILURE_THRESHOLD"); val != "" {
		if u, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.Backend.Breaker.FailureThreshold = uint32(u)
		}
	}
	envDuration("BACKEND_BREAKER_TIMEOUT", &cfg.Backend.Breaker.Timeout)

	// Policy overrides
	envString("POLICY_MODE", &cfg.Policy.Mode)
	envString("POLICY_FILE_PATH", &cfg.Policy.FilePath)
	envBool("POLICY_WATCH", &cfg.Policy.Watch)
	envDuration("POLICY_DEBOUNCE", &cfg.Policy.Debounce)
	envString("POLICY_DOCUMENT_NAME", &cfg.Policy.DocumentName)
	envString("POLICY_REFRESH_SCHEDULE", &cfg.Policy.RefreshSchedule)
	if val := os.Getenv(EnvPrefix + "POLICY_FETCH_ATTEMPTS"); val != "" {
		if u, err := strconv.ParseUint(val, 10, 0); err == nil {
			cfg.Policy.FetchAttempts = uint(u)
		}
	}

	// Store overrides
	envString("STORE_BACKEND", &cfg.Store.Backend)
	envString("STORE_SQLITE_PATH", &cfg.Store.SQLite.Path)
	envDuration("STORE_SQLITE_BUSY_TIMEOUT", &cfg.Store.SQLite.BusyTimeout)
	envString("STORE_REDIS_ADDR", &cfg.Store.Redis.Addr)
	envString("STORE_REDIS_PASSWORD", &cfg.Store.Redis.Password)
	envInt("STORE_REDIS_DB", &cfg.Store.Redis.DB)
	envString("STORE_REDIS_PREFIX", &cfg.Store.Redis.Prefix)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	envBool("TELEMETRY_LOGGING_REDACT_SECRETS", &cfg.Telemetry.Logging.RedactSecrets)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envString("TELEMETRY_TRACING_SERVICE_NAME", &cfg.Telemetry.Tracing.ServiceName)
	envBool("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}
