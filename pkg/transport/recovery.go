package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rhuss/chatwire/pkg/api"
)

// Recovery returns middleware that converts handler panics into server
// errors. The server keeps accepting requests after a recovered panic.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic in chat handler",
						"request_id", RequestIDFromContext(ctx),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.Chat(ctx, req, w)
		})
	}
}
