package config

import (
	"testing"
	"time"
)

// validConfig returns a defaulted configuration that passes validation.
func validConfig() *Config {
	cfg := Default()
	cfg.Backend.BaseURL = "https://api.openai.com/v1"
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"gateway.listen_address", cfg.Gateway.ListenAddress, DefaultListenAddress},
		{"gateway.write_timeout", cfg.Gateway.WriteTimeout, DefaultWriteTimeout},
		{"gateway.max_body_bytes", cfg.Gateway.MaxBodyBytes, int64(DefaultMaxBodyBytes)},
		{"gateway.cors.max_age", cfg.Gateway.CORS.MaxAge, DefaultCORSMaxAge},
		{"backend.name", cfg.Backend.Name, DefaultBackendName},
		{"backend.timeout", cfg.Backend.Timeout, DefaultBackendTimeout},
		{"backend.burst", cfg.Backend.Burst, 0},
		{"backend.breaker.timeout", cfg.Backend.Breaker.Timeout, time.Duration(0)},
		{"policy.mode", cfg.Policy.Mode, DefaultPolicyMode},
		{"policy.document_name", cfg.Policy.DocumentName, DefaultPolicyDocumentName},
		{"policy.refresh_schedule", cfg.Policy.RefreshSchedule, DefaultPolicyRefreshSchedule},
		{"policy.fetch_attempts", cfg.Policy.FetchAttempts, uint(DefaultPolicyFetchAttempts)},
		{"store.backend", cfg.Store.Backend, DefaultStoreBackend},
		{"store.sqlite.path", cfg.Store.SQLite.Path, DefaultSQLitePath},
		{"store.redis.prefix", cfg.Store.Redis.Prefix, DefaultRedisPrefix},
		{"telemetry.logging.level", cfg.Telemetry.Logging.Level, DefaultLoggingLevel},
		{"telemetry.metrics.namespace", cfg.Telemetry.Metrics.Namespace, DefaultMetricsNamespace},
		{"telemetry.tracing.sample_ratio", cfg.Telemetry.Tracing.SampleRatio, DefaultTracingSamplingRate},
		{"telemetry.health.path", cfg.Telemetry.Health.Path, DefaultHealthPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestApplyDefaults_ConditionalBackendDefaults(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{RateLimit: 5, Breaker: BreakerConfig{FailureThreshold: 3}}}
	ApplyDefaults(cfg)

	if cfg.Backend.Burst != DefaultBackendBurst {
		t.Errorf("burst = %d, want %d", cfg.Backend.Burst, DefaultBackendBurst)
	}
	if cfg.Backend.Breaker.Timeout != DefaultBreakerTimeout {
		t.Errorf("breaker timeout = %v, want %v", cfg.Backend.Breaker.Timeout, DefaultBreakerTimeout)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Gateway: GatewayConfig{ListenAddress: "0.0.0.0:9090"},
		Policy:  PolicyConfig{Mode: "store", DocumentName: "prod"},
		Store:   StoreConfig{Backend: "redis"},
	}
	ApplyDefaults(cfg)
	ApplyDefaults(cfg)

	if cfg.Gateway.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("listen address overwritten: %q", cfg.Gateway.ListenAddress)
	}
	if cfg.Policy.Mode != "store" || cfg.Policy.DocumentName != "prod" {
		t.Errorf("policy overwritten: %+v", cfg.Policy)
	}
	if cfg.Store.Backend != "redis" {
		t.Errorf("store backend overwritten: %q", cfg.Store.Backend)
	}
	if len(cfg.Gateway.CORS.AllowedOrigins) != 1 {
		t.Errorf("CORS origins = %v", cfg.Gateway.CORS.AllowedOrigins)
	}
}
