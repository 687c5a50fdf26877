package aifm

import "github.com/rhuss/chatwire/pkg/message"

// chatRequest is the AI Foundation Models request body. Unset options are
// omitted so the backend applies its own defaults.
type chatRequest struct {
	Messages    []message.WireMessage `json:"messages"`
	Temperature *float64              `json:"temperature,omitempty"`
	TopP        *float64              `json:"top_p,omitempty"`
	MaxTokens   *int                  `json:"max_tokens,omitempty"`
	Stop        []string              `json:"stop,omitempty"`
	Stream      bool                  `json:"stream"`
}
