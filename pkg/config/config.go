// Package config provides unified configuration for the chatwire gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CHATWIRE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/rhuss/chatwire/pkg/api"
)

// Config holds all configuration for the chatwire gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Providers     []ProviderConfig    `yaml:"providers"`
	Defaults      OptionsConfig       `yaml:"defaults"`
	Breaker       BreakerConfig       `yaml:"breaker"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 0 (streams may run long)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MB
}

// GatewayConfig holds request routing settings.
type GatewayConfig struct {
	// DefaultProvider names the provider used when a request names none.
	// Defaults to the first configured provider.
	DefaultProvider string `yaml:"default_provider"`

	MaxMessages int `yaml:"max_messages"` // default: 1000
}

// ProviderConfig describes one upstream provider instance.
type ProviderConfig struct {
	Name         string            `yaml:"name" json:"name"`
	Type         string            `yaml:"type" json:"type"` // "aifm" or "nemo"
	BaseURL      string            `yaml:"base_url" json:"base_url"`
	APIKey       string            `yaml:"api_key" json:"api_key"`
	APIKeyFile   string            `yaml:"api_key_file" json:"api_key_file"`
	DefaultModel string            `yaml:"default_model" json:"default_model"`
	Models       []string          `yaml:"models" json:"models"`
	Functions    map[string]string `yaml:"functions" json:"functions"` // aifm only: model -> function ID
	Timeout      time.Duration     `yaml:"timeout" json:"timeout"`

	// StrictTermination fails streams whose body ends mid-line.
	StrictTermination bool `yaml:"strict_termination" json:"strict_termination"`
}

// OptionsConfig holds default sampling parameters. Request values win.
type OptionsConfig struct {
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	TopK        *int     `yaml:"top_k"`
	MaxTokens   *int     `yaml:"max_tokens"`
	Stop        []string `yaml:"stop"`
}

// CompletionOptions converts the defaults to the API type.
func (o OptionsConfig) CompletionOptions() api.CompletionOptions {
	return api.CompletionOptions{
		Temperature: o.Temperature,
		TopP:        o.TopP,
		TopK:        o.TopK,
		MaxTokens:   o.MaxTokens,
		Stop:        o.Stop,
	}
}

// BreakerConfig configures the circuit breaker in front of every provider.
type BreakerConfig struct {
	Disabled    bool          `yaml:"disabled"`
	MaxFailures uint32        `yaml:"max_failures"` // default: 5
	Timeout     time.Duration `yaml:"timeout"`      // default: 30s
	Interval    time.Duration `yaml:"interval"`     // default: 60s
}

// StorageConfig holds transcript storage settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "postgres" or "none", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication and rate limiting settings.
type AuthConfig struct {
	Type       string                     `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys    []APIKeyConfig             `yaml:"api_keys"` // entries for type=apikey
	JWT        JWTConfig                  `yaml:"jwt"`
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"` // keyed by service tier
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds settings for bearer token validation.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`
	TenantClaim string        `yaml:"tenant_claim"`
	ScopesClaim string        `yaml:"scopes_claim"`
	TierClaim   string        `yaml:"tier_claim"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// RateLimitConfig limits one service tier.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig selects log level, format and debug categories.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // ERROR, WARN, INFO, DEBUG, TRACE; default: INFO
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated categories
}

// Defaults returns a Config with all default values filled in. No
// provider is configured by default.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     10 << 20,
		},
		Gateway: GatewayConfig{
			MaxMessages: 1000,
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
