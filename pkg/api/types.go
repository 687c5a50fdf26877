package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Content part types.
const (
	ContentTypeText     = "text"
	ContentTypeImageURL = "image_url"
)

// ContentPart is one element of mixed message content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL holds an image reference. URL is opaque to chatwire; data URIs
// of the form "data:<mime>;base64,<payload>" are the common case.
type ImageURL struct {
	URL string `json:"url"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeText, Text: text}
}

// ImagePart builds an image content part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: ContentTypeImageURL, ImageURL: &ImageURL{URL: url}}
}

// Content is either plain text or an ordered sequence of parts. A nil Parts
// slice means plain text.
//
// On the wire, plain text is a JSON string and mixed content is a JSON array
// of parts.
type Content struct {
	Text  string
	Parts []ContentPart
}

// TextContent returns plain-text content.
func TextContent(text string) Content {
	return Content{Text: text}
}

// PartsContent returns mixed content made of the given parts.
func PartsContent(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{Parts: parts}
}

// IsText reports whether the content is plain text.
func (c Content) IsText() bool {
	return c.Parts == nil
}

// MarshalJSON encodes plain text as a string and mixed content as an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsText() {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Parts)
}

// UnmarshalJSON accepts either a JSON string or an array of parts.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Content{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = PartsContent(parts...)
		return nil
	default:
		return fmt.Errorf("content must be a string or an array of parts")
	}
}

// ChatMessage is a role-tagged conversational unit supplied by the caller.
type ChatMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// ChatDelta is one incremental piece of an assistant message. Concatenating
// the Content of all deltas of a stream, in arrival order, reconstructs the
// full message text.
type ChatDelta struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions are sampling parameters forwarded to the provider.
// Providers ignore the ones their wire format has no field for.
type CompletionOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Merge returns o with unset fields filled from defaults.
func (o CompletionOptions) Merge(defaults CompletionOptions) CompletionOptions {
	if o.Temperature == nil {
		o.Temperature = defaults.Temperature
	}
	if o.TopP == nil {
		o.TopP = defaults.TopP
	}
	if o.TopK == nil {
		o.TopK = defaults.TopK
	}
	if o.MaxTokens == nil {
		o.MaxTokens = defaults.MaxTokens
	}
	if o.Stop == nil {
		o.Stop = defaults.Stop
	}
	return o
}

// ChatRequest is the gateway request body. Exactly one of Messages and
// Prompt is set. A Prompt request is served as a text completion.
type ChatRequest struct {
	Provider string        `json:"provider,omitempty"`
	Model    string        `json:"model,omitempty"`
	Messages []ChatMessage `json:"messages,omitempty"`
	Prompt   string        `json:"prompt,omitempty"`
	Stream   bool          `json:"stream,omitempty"`
	Store    *bool         `json:"store,omitempty"`
	CompletionOptions
}

// IsCompletion reports whether the request is a single-prompt completion.
func (r *ChatRequest) IsCompletion() bool {
	return r.Prompt != "" && len(r.Messages) == 0
}

// ShouldStore reports whether the exchange should be persisted. Storing is
// the default when a store is configured.
func (r *ChatRequest) ShouldStore() bool {
	return r.Store == nil || *r.Store
}

// ChatResponse is the non-streaming gateway response.
type ChatResponse struct {
	ID        string      `json:"id"`
	Object    string      `json:"object"`
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`
	Message   ChatMessage `json:"message"`
	CreatedAt int64       `json:"created_at"`
}

// StreamEventType names a gateway streaming event.
type StreamEventType string

const (
	EventChatCreated   StreamEventType = "chat.created"
	EventChatDelta     StreamEventType = "chat.delta"
	EventChatCompleted StreamEventType = "chat.completed"
	EventError         StreamEventType = "error"
)

// StreamEvent is one server-sent event emitted by the gateway.
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	SequenceNumber int             `json:"sequence_number"`
	Delta          *ChatDelta      `json:"delta,omitempty"`
	Response       *ChatResponse   `json:"response,omitempty"`
	Error          *APIError       `json:"error,omitempty"`
}

// IsTerminal reports whether the event ends a stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventChatCompleted || e.Type == EventError
}
