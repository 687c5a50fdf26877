package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CHATWIRE_CONFIG env, ./config.yaml, /etc/chatwire/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CHATWIRE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/chatwire/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("CHATWIRE_CONFIG"); envPath != "" {
		return envPath
	}

	for _, path := range []string{"config.yaml", "/etc/chatwire/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into cfg. Fields not present
// in the YAML keep their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps CHATWIRE_* environment variables onto cfg.
// Malformed numeric values and JSON lists are reported as errors.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("CHATWIRE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHATWIRE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("CHATWIRE_DEFAULT_PROVIDER"); v != "" {
		cfg.Gateway.DefaultProvider = v
	}
	if v := os.Getenv("CHATWIRE_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("CHATWIRE_STORAGE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHATWIRE_STORAGE_SIZE: %w", err)
		}
		cfg.Storage.MaxSize = size
	}
	if v := os.Getenv("CHATWIRE_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("CHATWIRE_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	if v := os.Getenv("CHATWIRE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CHATWIRE_DEBUG"); v != "" {
		cfg.Logging.Debug = v
	}

	// CHATWIRE_PROVIDERS: JSON array of provider configs, replacing the file's list.
	if v := os.Getenv("CHATWIRE_PROVIDERS"); v != "" {
		var providers []ProviderConfig
		if err := json.Unmarshal([]byte(v), &providers); err != nil {
			return fmt.Errorf("CHATWIRE_PROVIDERS: %w", err)
		}
		cfg.Providers = providers
	}

	// CHATWIRE_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("CHATWIRE_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("CHATWIRE_API_KEYS: %w", err)
		}
		cfg.Auth.APIKeys = keys
	}

	// CHATWIRE_<NAME>_API_KEY sets the upstream key of the named provider.
	for i := range cfg.Providers {
		if v := os.Getenv(providerKeyEnv(cfg.Providers[i].Name)); v != "" {
			cfg.Providers[i].APIKey = v
		}
	}

	return nil
}

// providerKeyEnv returns the API key variable for a provider name, e.g.
// "nemo-eu" becomes CHATWIRE_NEMO_EU_API_KEY.
func providerKeyEnv(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return "CHATWIRE_" + name + "_API_KEY"
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. An explicit value wins over its file reference.
func resolveFileReferences(cfg *Config) error {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.APIKeyFile != "" && p.APIKey == "" {
			val, err := readSecretFile(p.APIKeyFile)
			if err != nil {
				return fmt.Errorf("providers[%d].api_key_file: %w", i, err)
			}
			p.APIKey = val
		}
	}

	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
