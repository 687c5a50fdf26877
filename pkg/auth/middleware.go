package auth

import (
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/observability"
	"github.com/rhuss/chatwire/pkg/storage"
	"github.com/rhuss/chatwire/pkg/transport"
)

// DefaultBypass lists paths that never require credentials.
var DefaultBypass = []string{"/healthz", "/readyz", "/metrics"}

// Middleware authenticates every request outside bypass, applies the
// limiter when one is given and stores the identity and tenant in the
// request context.
func Middleware(chain Authenticator, limiter *Limiter, bypass []string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(bypass, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				logger.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"request_id", transport.RequestIDFromContext(r.Context()),
					"error", res.Err,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				transport.WriteErrorResponse(w, &api.APIError{
					Type:    api.ErrorTypeInvalidRequest,
					Code:    "unauthenticated",
					Message: ErrUnauthenticated.Error(),
				}, http.StatusUnauthorized)
				return
			}

			id := res.Identity
			if id.Subject == "" {
				logger.Error("authenticator returned an identity without subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}

			if limiter != nil {
				if wait, err := limiter.Allow(id); err != nil {
					logger.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.ServiceTier, "retry_after", wait)
					observability.RateLimitRejectedTotal.WithLabelValues(id.ServiceTier).Inc()
					w.Header().Set("Retry-After", retryAfter(wait))
					transport.WriteAPIError(w, api.NewTooManyRequestsError(err.Error()))
					return
				}
			}

			ctx := WithIdentity(r.Context(), id)
			if id.TenantID != "" {
				ctx = storage.SetTenant(ctx, id.TenantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// retryAfter renders a wait as whole seconds, rounded up and at least one.
func retryAfter(wait time.Duration) string {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
