package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "gateway.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Has reports whether field failed validation.
func (e ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateGateway(&cfg.Gateway)...)
	errs = append(errs, validateBackend(&cfg.Backend)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateGateway validates gateway server configuration.
func validateGateway(cfg *GatewayConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "gateway.listen_address",
			Message: "listen address is required",
		})
	}

	for field, d := range map[string]time.Duration{
		"gateway.read_timeout":     cfg.ReadTimeout,
		"gateway.write_timeout":    cfg.WriteTimeout,
		"gateway.idle_timeout":     cfg.IdleTimeout,
		"gateway.shutdown_timeout": cfg.ShutdownTimeout,
	} {
		if d < 0 {
			errs = append(errs, FieldError{Field: field, Message: "timeout must be positive"})
		}
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "gateway.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.max_body_bytes",
			Message: "max body bytes must be non-negative",
		})
	}
	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.cors.max_age",
			Message: "max age must be non-negative",
		})
	}
	errs = append(errs, validateTLS(&cfg.TLS)...)

	return errs
}

// validateTLS validates listener TLS configuration. Files are only checked
// for presence here; they are read when the listener starts.
func validateTLS(cfg *TLSConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError

	if cfg.CertFile == "" {
		errs = append(errs, FieldError{
			Field:   "gateway.tls.cert_file",
			Message: "certificate file is required when TLS is enabled",
		})
	}
	if cfg.KeyFile == "" {
		errs = append(errs, FieldError{
			Field:   "gateway.tls.key_file",
			Message: "key file is required when TLS is enabled",
		})
	}
	if cfg.MinVersion != "1.2" && cfg.MinVersion != "1.3" {
		errs = append(errs, FieldError{
			Field:   "gateway.tls.min_version",
			Message: fmt.Sprintf("invalid TLS version %q: must be '1.2' or '1.3'", cfg.MinVersion),
		})
	}
	if cfg.ClientAuth != "require" && cfg.ClientAuth != "verify_if_given" {
		errs = append(errs, FieldError{
			Field:   "gateway.tls.client_auth",
			Message: fmt.Sprintf("invalid client auth %q: must be 'require' or 'verify_if_given'", cfg.ClientAuth),
		})
	}

	return errs
}

// validateBackend validates the upstream provider configuration.
func validateBackend(cfg *BackendConfig) []FieldError {
	var errs []FieldError

	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{
			Field:   "backend.base_url",
			Message: "base URL is required",
		})
	} else if u, err := url.Parse(cfg.BaseURL); err != nil {
		errs = append(errs, FieldError{
			Field:   "backend.base_url",
			Message: fmt.Sprintf("invalid URL format: %v", err),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, FieldError{
			Field:   "backend.base_url",
			Message: fmt.Sprintf("unsupported scheme %q: must be http or https", u.Scheme),
		})
	}

	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "backend.timeout",
			Message: "timeout must be positive",
		})
	}
	if cfg.RateLimit < 0 {
		errs = append(errs, FieldError{
			Field:   "backend.rate_limit",
			Message: "rate limit must be non-negative",
		})
	}
	if cfg.Burst < 0 {
		errs = append(errs, FieldError{
			Field:   "backend.burst",
			Message: "burst must be non-negative",
		})
	}
	if cfg.HealthCheckInterval < 0 {
		errs = append(errs, FieldError{
			Field:   "backend.health_check_interval",
			Message: "health check interval must be non-negative",
		})
	}
	if cfg.Breaker.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "backend.breaker.timeout",
			Message: "breaker timeout must be positive",
		})
	}

	return errs
}

// validatePolicy validates policy source configuration.
func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	validModes := map[string]bool{"file": true, "store": true}
	if cfg.Mode == "" {
		errs = append(errs, FieldError{
			Field:   "policy.mode",
			Message: "mode is required",
		})
	} else if !validModes[cfg.Mode] {
		errs = append(errs, FieldError{
			Field:   "policy.mode",
			Message: fmt.Sprintf("invalid mode %q: must be 'file' or 'store'", cfg.Mode),
		})
	}

	switch cfg.Mode {
	case "file":
		if cfg.FilePath == "" {
			errs = append(errs, FieldError{
				Field:   "policy.file_path",
				Message: "file path is required when mode is 'file'",
			})
		}
		if cfg.Debounce < 0 {
			errs = append(errs, FieldError{
				Field:   "policy.debounce",
				Message: "debounce must be non-negative",
			})
		}
	case "store":
		if cfg.DocumentName == "" {
			errs = append(errs, FieldError{
				Field:   "policy.document_name",
				Message: "document name is required when mode is 'store'",
			})
		}
		if _, err := cron.ParseStandard(cfg.RefreshSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "policy.refresh_schedule",
				Message: fmt.Sprintf("invalid cron schedule %q: %v", cfg.RefreshSchedule, err),
			})
		}
		if cfg.FetchAttempts > 10 {
			errs = append(errs, FieldError{
				Field:   "policy.fetch_attempts",
				Message: "fetch attempts exceeds reasonable limit (10)",
			})
		}
	}

	return errs
}

// validateStore validates store configuration.
func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.path",
				Message: "path is required when backend is 'sqlite'",
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.busy_timeout",
				Message: "busy timeout must be non-negative",
			})
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{
				Field:   "store.redis.addr",
				Message: "address is required when backend is 'redis'",
			})
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, FieldError{
				Field:   "store.redis.db",
				Message: "database index must be non-negative",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory', 'sqlite', or 'redis'", cfg.Backend),
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if cfg.Tracing.Sampler != "" && !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if !strings.HasPrefix(cfg.Health.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.path",
			Message: "health path must start with /",
		})
	}
	if cfg.Metrics.Enabled && cfg.Health.Path == cfg.Metrics.Path {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.path",
			Message: "health path conflicts with metrics path",
		})
	}

	return errs
}
