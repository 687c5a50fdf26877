package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/chatwire/pkg/api"
)

// Logging returns middleware that emits one structured log entry per chat
// request with the request ID, routing target, stream flag and duration.
// HTTP status codes are not visible at this level; the metrics middleware
// records those.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
			start := time.Now()

			err := next.Chat(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("provider", req.Provider),
				slog.String("model", req.Model),
				slog.Bool("stream", req.Stream),
				slog.Bool("completion", req.IsCompletion()),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "chat failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "chat completed", attrs...)
			}

			return err
		})
	}
}
