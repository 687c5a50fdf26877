package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Providers) == 0 {
		errs = append(errs, fmt.Errorf("at least one entry in providers is required"))
	}

	var names []string
	for i, p := range c.Providers {
		switch p.Type {
		case "aifm", "nemo":
		default:
			errs = append(errs, fmt.Errorf("providers[%d].type must be \"aifm\" or \"nemo\", got %q", i, p.Type))
		}

		name := p.Name
		if name == "" {
			name = p.Type
		}
		if slices.Contains(names, name) {
			errs = append(errs, fmt.Errorf("providers[%d].name %q is not unique", i, name))
		}
		names = append(names, name)

		if p.APIKey == "" && p.APIKeyFile == "" {
			errs = append(errs, fmt.Errorf("providers[%d].api_key or providers[%d].api_key_file is required", i, i))
		}
		if p.DefaultModel != "" && len(p.Models) > 0 && !slices.Contains(p.Models, p.DefaultModel) {
			errs = append(errs, fmt.Errorf("providers[%d].default_model %q is not in providers[%d].models", i, p.DefaultModel, i))
		}
		if p.Timeout < 0 {
			errs = append(errs, fmt.Errorf("providers[%d].timeout must not be negative", i))
		}
	}

	if d := c.Gateway.DefaultProvider; d != "" && len(names) > 0 && !slices.Contains(names, d) {
		errs = append(errs, fmt.Errorf("gateway.default_provider %q names no configured provider (have %s)", d, strings.Join(names, ", ")))
	}

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	if t := c.Defaults.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("defaults.temperature must be between 0 and 2, got %v", *t))
	}
	if p := c.Defaults.TopP; p != nil && (*p < 0 || *p > 1) {
		errs = append(errs, fmt.Errorf("defaults.top_p must be between 0 and 1, got %v", *p))
	}
	if m := c.Defaults.MaxTokens; m != nil && *m < 1 {
		errs = append(errs, fmt.Errorf("defaults.max_tokens must be >= 1, got %d", *m))
	}

	switch c.Storage.Type {
	case "memory", "postgres", "none":
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\" or \"none\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" && c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
		errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
	}

	switch c.Auth.Type {
	case "none", "apikey", "jwt":
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.Type == "apikey" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth.api_keys is required when auth.type is \"apikey\""))
	}
	if c.Auth.Type == "jwt" && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
	}
	for tier, rl := range c.Auth.RateLimits {
		if rl.RequestsPerMinute <= 0 {
			errs = append(errs, fmt.Errorf("auth.rate_limits.%s.requests_per_minute must be > 0", tier))
		}
	}

	switch strings.ToUpper(c.Logging.Level) {
	case "", "ERROR", "WARN", "INFO", "DEBUG", "TRACE":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of ERROR, WARN, INFO, DEBUG, TRACE; got %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}
