package nemo

import "github.com/rhuss/chatwire/pkg/message"

// chatRequest is the NeMo chat request body. Streaming is requested with
// the x-stream header rather than a body field.
type chatRequest struct {
	ChatContext      []message.WireMessage `json:"chat_context"`
	Temperature      *float64              `json:"temperature,omitempty"`
	TopP             *float64              `json:"top_p,omitempty"`
	TopK             *int                  `json:"top_k,omitempty"`
	TokensToGenerate *int                  `json:"tokens_to_generate,omitempty"`
	Stop             []string              `json:"stop,omitempty"`
}
