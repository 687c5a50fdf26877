package transport

import (
	"context"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/provider"
)

// ChatHandler serves the chat operation. The implementation receives a
// validated-shape request and writes the result (streaming events or a
// complete response) to the ResponseWriter.
type ChatHandler interface {
	Chat(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error
}

// ChatHandlerFunc is an adapter that allows using an ordinary function
// as a ChatHandler.
type ChatHandlerFunc func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error

// Chat calls f(ctx, req, w).
func (f ChatHandlerFunc) Chat(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ProviderCatalog lists the providers a handler can route to.
type ProviderCatalog interface {
	Providers() []provider.Info
}

// ListOptions controls pagination, filtering, and ordering for list operations.
type ListOptions struct {
	After    string // Cursor: return items after this ID.
	Before   string // Cursor: return items before this ID.
	Limit    int    // Maximum number of items to return (default 20, max 100).
	Provider string // Filter by provider name.
	Model    string // Filter by model name.
	Order    string // Sort order: "asc" or "desc" (default "desc").
}

// Page limits for list operations.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// EffectiveLimit clamps Limit into [1, MaxListLimit], defaulting to
// DefaultListLimit.
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

// TranscriptList holds a paginated list of transcripts.
type TranscriptList struct {
	Object  string            `json:"object"`
	Data    []*api.Transcript `json:"data"`
	HasMore bool              `json:"has_more"`
	FirstID string            `json:"first_id"`
	LastID  string            `json:"last_id"`
}

// TranscriptStore persists exchange transcripts. It is only available when
// storage is configured. Every method scopes its work to the tenant found
// in the context, if any.
type TranscriptStore interface {
	// SaveTranscript persists a finished exchange. Returns
	// storage.ErrConflict if the ID is already stored.
	SaveTranscript(ctx context.Context, t *api.Transcript) error

	// GetTranscript retrieves a transcript by ID. Returns
	// storage.ErrNotFound if it does not exist or was deleted.
	GetTranscript(ctx context.Context, id string) (*api.Transcript, error)

	// DeleteTranscript removes a transcript by ID.
	DeleteTranscript(ctx context.Context, id string) error

	// ListTranscripts returns a page of transcripts.
	ListTranscripts(ctx context.Context, opts ListOptions) (*TranscriptList, error)

	// HealthCheck verifies the store is usable.
	HealthCheck(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// ResponseWriter abstracts streaming and non-streaming output for the handler.
//
// WriteEvent and WriteResponse are mutually exclusive on a single writer
// instance. Calling WriteEvent after a terminal event (chat.completed or
// error) returns an error.
type ResponseWriter interface {
	// WriteEvent sends a single streaming event.
	WriteEvent(ctx context.Context, event api.StreamEvent) error

	// WriteResponse sends a complete non-streaming response.
	WriteResponse(ctx context.Context, resp *api.ChatResponse) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}
