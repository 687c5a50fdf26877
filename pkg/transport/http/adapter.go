package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/storage"
	"github.com/rhuss/chatwire/pkg/transport"
)

// Adapter serves the chatwire API over HTTP.
type Adapter struct {
	handler  transport.ChatHandler
	store    transport.TranscriptStore // nil when storage is disabled
	catalog  transport.ProviderCatalog // nil hides GET /v1/providers
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
	logger   *slog.Logger
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	Logger      *slog.Logger
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 10 << 20, // 10 MB
	}
}

// NewAdapter creates an HTTP adapter. store and catalog are optional.
// Middleware is applied to the handler in the given order.
func NewAdapter(handler transport.ChatHandler, store transport.TranscriptStore, catalog transport.ProviderCatalog, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		handler = transport.Chain(middlewares...)(handler)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Adapter{
		handler:  handler,
		store:    store,
		catalog:  catalog,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
		logger:   cfg.Logger,
	}

	a.mux.HandleFunc("POST /v1/chat", a.handleChat)
	a.mux.HandleFunc("DELETE /v1/chat/{id}", a.handleCancelChat)
	a.mux.HandleFunc("GET /v1/transcripts", a.handleListTranscripts)
	a.mux.HandleFunc("GET /v1/transcripts/{id}", a.handleGetTranscript)
	a.mux.HandleFunc("DELETE /v1/transcripts/{id}", a.handleDeleteTranscript)
	a.mux.HandleFunc("GET /v1/providers", a.handleListProviders)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.HandleFunc("GET /readyz", a.handleReady)

	return a
}

// Handler returns the http.Handler for this adapter, including X-Request-ID
// propagation.
func (a *Adapter) Handler() http.Handler {
	return requestIDMiddleware(a.mux)
}

// requestIDMiddleware puts a request ID into the context, taking it from
// X-Request-ID when the client sent one, and echoes it on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		next.ServeHTTP(&requestIDResponseWriter{ResponseWriter: w, id: id}, r)
	})
}

// requestIDResponseWriter sets X-Request-ID before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	id          string
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	w.ensureRequestIDHeader()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	w.ResponseWriter.Header().Set("X-Request-ID", w.id)
}

// handleChat handles POST /v1/chat.
func (a *Adapter) handleChat(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	if !req.Stream {
		rw := newSSEResponseWriter(w, nil)
		if err := a.handler.Chat(r.Context(), &req, rw); err != nil {
			a.writeHandlerError(w, rw, err)
		}
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var registeredID string
	rw := newSSEResponseWriter(w, func(id string) {
		registeredID = id
		a.inflight.Register(id, cancel)
	})

	err := a.handler.Chat(ctx, &req, rw)

	if registeredID != "" {
		a.inflight.Remove(registeredID)
	}
	if err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleCancelChat handles DELETE /v1/chat/{id}, cancelling a stream that
// is still being relayed.
func (a *Adapter) handleCancelChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateChatID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed chat ID"))
		return
	}
	if !a.inflight.Cancel(id) {
		transport.WriteAPIError(w, api.NewNotFoundError("chat "+id+" is not in progress"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTranscript handles GET /v1/transcripts/{id}.
func (a *Adapter) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}
	id := r.PathValue("id")
	if !api.ValidateChatID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed transcript ID"))
		return
	}

	t, err := a.store.GetTranscript(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, id, err)
		return
	}
	writeJSON(w, t)
}

// handleDeleteTranscript handles DELETE /v1/transcripts/{id}.
func (a *Adapter) handleDeleteTranscript(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}
	id := r.PathValue("id")
	if !api.ValidateChatID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed transcript ID"))
		return
	}

	if err := a.store.DeleteTranscript(r.Context(), id); err != nil {
		a.writeStoreError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListTranscripts handles GET /v1/transcripts.
func (a *Adapter) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	list, err := a.store.ListTranscripts(r.Context(), opts)
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, list)
}

type providerList struct {
	Object string `json:"object"`
	Data   any    `json:"data"`
}

// handleListProviders handles GET /v1/providers.
func (a *Adapter) handleListProviders(w http.ResponseWriter, r *http.Request) {
	if a.catalog == nil {
		transport.WriteAPIError(w, api.NewNotFoundError("provider listing is not available"))
		return
	}
	writeJSON(w, providerList{Object: "list", Data: a.catalog.Providers()})
}

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

// handleReady reports ready once the store (if any) answers.
func (a *Adapter) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		if err := a.store.HealthCheck(r.Context()); err != nil {
			a.logger.Warn("readiness check failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func (a *Adapter) requireStore(w http.ResponseWriter) bool {
	if a.store != nil {
		return true
	}
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", "transcripts are not available (no store configured)"),
		http.StatusNotImplemented,
	)
	return false
}

func (a *Adapter) writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("transcript "+id+" not found"))
		return
	}
	transport.WriteAPIError(w, transport.AsAPIError(err))
}

// parseListOptions extracts pagination parameters from the query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		After:    q.Get("after"),
		Before:   q.Get("before"),
		Provider: q.Get("provider"),
		Model:    q.Get("model"),
		Order:    q.Get("order"),
	}

	if opts.After != "" && opts.Before != "" {
		return opts, api.NewInvalidRequestError("after", "cannot use both 'after' and 'before' cursors")
	}

	switch opts.Order {
	case "":
		opts.Order = "desc"
	case "asc", "desc":
	default:
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}

	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

// writeHandlerError reports a handler failure. Once streaming has begun
// the failure goes out as an error event; otherwise as a JSON error.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseResponseWriter, err error) {
	apiErr := transport.AsAPIError(err)

	if rw.hasStreamed() {
		if rw.isCompleted() {
			return
		}
		if werr := rw.WriteEvent(context.Background(), api.StreamEvent{Type: api.EventError, Error: apiErr}); werr != nil {
			a.logger.Debug("could not deliver error event", "error", werr)
		}
		return
	}
	if rw.isCompleted() {
		return
	}

	transport.WriteAPIError(w, apiErr)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
