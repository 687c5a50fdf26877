package api

import (
	"fmt"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessages    int
	MaxContentSize int
	MaxStop        int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessages:    1000,
		MaxContentSize: 10 * 1024 * 1024, // 10MB
		MaxStop:        16,
	}
}

// ValidateRequest checks a ChatRequest for validity. It returns an *APIError
// describing the first validation failure, or nil if the request is valid.
func ValidateRequest(req *ChatRequest, cfg ValidationConfig) *APIError {
	switch {
	case req.Prompt != "" && len(req.Messages) > 0:
		return NewInvalidRequestError("prompt", "prompt and messages are mutually exclusive")
	case req.Prompt == "" && len(req.Messages) == 0:
		return NewInvalidRequestError("messages", "messages must contain at least one message")
	}

	if cfg.MaxMessages > 0 && len(req.Messages) > cfg.MaxMessages {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("messages exceeds maximum of %d", cfg.MaxMessages))
	}

	if cfg.MaxContentSize > 0 && len(req.Prompt) > cfg.MaxContentSize {
		return NewInvalidRequestError("prompt",
			fmt.Sprintf("prompt exceeds maximum size of %d bytes", cfg.MaxContentSize))
	}

	for i, msg := range req.Messages {
		if apiErr := validateMessage(msg, i, cfg); apiErr != nil {
			return apiErr
		}
	}

	return ValidateOptions(req.CompletionOptions, cfg)
}

// ValidateOptions checks sampling parameters for range errors.
func ValidateOptions(opts CompletionOptions, cfg ValidationConfig) *APIError {
	if opts.Temperature != nil {
		if *opts.Temperature < 0.0 || *opts.Temperature > 2.0 {
			return NewInvalidRequestError("temperature", "temperature must be between 0.0 and 2.0")
		}
	}

	if opts.TopP != nil {
		if *opts.TopP < 0.0 || *opts.TopP > 1.0 {
			return NewInvalidRequestError("top_p", "top_p must be between 0.0 and 1.0")
		}
	}

	if opts.TopK != nil && *opts.TopK < 0 {
		return NewInvalidRequestError("top_k", "top_k must not be negative")
	}

	if opts.MaxTokens != nil && *opts.MaxTokens <= 0 {
		return NewInvalidRequestError("max_tokens", "max_tokens must be positive")
	}

	if cfg.MaxStop > 0 && len(opts.Stop) > cfg.MaxStop {
		return NewInvalidRequestError("stop",
			fmt.Sprintf("stop exceeds maximum of %d sequences", cfg.MaxStop))
	}

	return nil
}

func validateMessage(msg ChatMessage, i int, cfg ValidationConfig) *APIError {
	param := fmt.Sprintf("messages[%d]", i)

	if msg.Role == "" {
		return NewInvalidRequestError(param+".role", "role is required")
	}
	if !msg.Role.Valid() {
		return NewInvalidRequestError(param+".role",
			fmt.Sprintf("role must be one of user, assistant, system; got %q", msg.Role))
	}

	if msg.Content.IsText() {
		if cfg.MaxContentSize > 0 && len(msg.Content.Text) > cfg.MaxContentSize {
			return NewInvalidRequestError(param+".content",
				fmt.Sprintf("content exceeds maximum size of %d bytes", cfg.MaxContentSize))
		}
		return nil
	}

	size := 0
	for j, part := range msg.Content.Parts {
		partParam := fmt.Sprintf("%s.content[%d]", param, j)
		switch part.Type {
		case ContentTypeText:
			size += len(part.Text)
		case ContentTypeImageURL:
			if part.ImageURL == nil || part.ImageURL.URL == "" {
				return NewInvalidRequestError(partParam+".image_url", "image_url.url is required")
			}
			size += len(part.ImageURL.URL)
		default:
			return NewInvalidRequestError(partParam+".type",
				fmt.Sprintf("unsupported content part type %q", part.Type))
		}
	}

	if cfg.MaxContentSize > 0 && size > cfg.MaxContentSize {
		return NewInvalidRequestError(param+".content",
			fmt.Sprintf("content exceeds maximum size of %d bytes", cfg.MaxContentSize))
	}

	return nil
}
