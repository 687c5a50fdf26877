package provider

import (
	"context"

	"github.com/rhuss/chatwire/pkg/stream"
)

// Provider adapts one vendor's streaming chat endpoint. Implementations
// build the vendor request, issue it, and hand the open response body to a
// stream.Stream decoding the vendor's dialect.
//
// Implementations must be safe for concurrent use; each returned Stream
// has a single owner.
type Provider interface {
	// Name returns the configured provider name (e.g. "aifm").
	Name() string

	// Dialect returns the wire dialect of the provider's streams.
	Dialect() stream.Dialect

	// Capabilities describes what requests the provider accepts.
	Capabilities() Capabilities

	// StreamChat starts a chat completion over req.Messages.
	StreamChat(ctx context.Context, req *Request) (*stream.Stream, error)

	// StreamComplete starts a completion for req.Prompt, sent as a single
	// user message. Consume it with Stream.Text.
	StreamComplete(ctx context.Context, req *Request) (*stream.Stream, error)

	// Close releases provider resources.
	Close() error
}
