package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/chatwire/pkg/api"
)

// RequestID returns middleware that makes sure every request carries an
// ID. An ID already in the context (taken from the X-Request-ID header by
// the HTTP adapter) is kept; otherwise a random UUID is assigned.
func RequestID() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, uuid.NewString())
			}
			return next.Chat(ctx, req, w)
		})
	}
}
