// Package config provides configuration management for the sluice gateway.
//
// Configuration is read from a YAML file, completed with defaults, overridden
// from the environment, and validated as a whole.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("sluice.yaml")               // file + defaults
//	cfg, err := config.LoadConfigWithEnvOverrides("sluice.yaml") // + environment
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention SLUICE_SECTION_FIELD:
//
//   - SLUICE_GATEWAY_LISTEN_ADDRESS overrides gateway.listen_address
//   - SLUICE_BACKEND_BASE_URL overrides backend.base_url
//   - SLUICE_STORE_REDIS_ADDR overrides store.redis.addr
//   - SLUICE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Values that fail to parse are ignored.
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// All field errors are collected into a single ValidationError:
//
//	configuration validation failed with 2 errors:
//	  - backend.base_url: base URL is required
//	  - store.backend: invalid backend "mongo": must be 'memory', 'sqlite', or 'redis'
//
// # Example Configuration
//
//	gateway:
//	  listen_address: "0.0.0.0:8080"
//
//	backend:
//	  base_url: "https://api.openai.com/v1"
//	  timeout: 60s
//	  breaker:
//	    failure_threshold: 5
//
//	policy:
//	  mode: "file"
//	  file_path: "./policy.yaml"
//	  watch: true
//
//	store:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/sluice.db"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//	  metrics:
//	    enabled: true
package config
