package engine

import (
	"log/slog"

	"github.com/rhuss/chatwire/pkg/api"
)

// Config holds configuration for the engine.
type Config struct {
	// Defaults fill sampling options the request leaves unset.
	Defaults api.CompletionOptions

	// Validation bounds incoming requests. The zero value uses
	// api.DefaultValidationConfig.
	Validation api.ValidationConfig

	Logger *slog.Logger
}

func (c Config) validation() api.ValidationConfig {
	if c.Validation == (api.ValidationConfig{}) {
		return api.DefaultValidationConfig()
	}
	return c.Validation
}
