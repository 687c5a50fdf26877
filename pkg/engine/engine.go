package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/debug"
	"github.com/rhuss/chatwire/pkg/observability"
	"github.com/rhuss/chatwire/pkg/provider"
	"github.com/rhuss/chatwire/pkg/stream"
	"github.com/rhuss/chatwire/pkg/transport"
)

// Resolver looks up providers by name. *registry.Registry implements it.
type Resolver interface {
	Get(name string) (provider.Provider, bool)
	Default() provider.Provider
	Providers() []provider.Info
}

// Engine serves chat requests against the configured providers.
type Engine struct {
	providers Resolver
	store     transport.TranscriptStore
	cfg       Config
	logger    *slog.Logger
}

var (
	_ transport.ChatHandler     = (*Engine)(nil)
	_ transport.ProviderCatalog = (*Engine)(nil)
)

// New creates an Engine. The store can be nil, in which case nothing is
// persisted.
func New(providers Resolver, store transport.TranscriptStore, cfg Config) (*Engine, error) {
	if providers == nil || providers.Default() == nil {
		return nil, fmt.Errorf("engine: at least one provider is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		providers: providers,
		store:     store,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Providers describes the providers requests can be routed to.
func (e *Engine) Providers() []provider.Info {
	return e.providers.Providers()
}

// exchange accumulates the outcome of one chat.
type exchange struct {
	id        string
	object    string
	provider  string
	model     string
	options   api.CompletionOptions
	createdAt int64
	reply     strings.Builder
}

func (x *exchange) response() *api.ChatResponse {
	return &api.ChatResponse{
		ID:        x.id,
		Object:    x.object,
		Provider:  x.provider,
		Model:     x.model,
		Message:   api.ChatMessage{Role: api.RoleAssistant, Content: api.TextContent(x.reply.String())},
		CreatedAt: x.createdAt,
	}
}

// Chat validates req, opens the provider stream and writes the result to
// w. Errors returned before the first event are for the transport to
// report; once streaming has begun the transport turns the error into an
// error event.
func (e *Engine) Chat(ctx context.Context, req *api.ChatRequest, w transport.ResponseWriter) error {
	if apiErr := api.ValidateRequest(req, e.cfg.validation()); apiErr != nil {
		return apiErr
	}

	p, apiErr := e.resolve(req.Provider)
	if apiErr != nil {
		return apiErr
	}

	caps := p.Capabilities()
	if apiErr := provider.ValidateCapabilities(caps, req); apiErr != nil {
		return apiErr
	}

	x := &exchange{
		object:   "chat",
		provider: p.Name(),
		model:    cmp.Or(req.Model, caps.DefaultModel),
		options:  req.CompletionOptions.Merge(e.cfg.Defaults),
	}
	if req.IsCompletion() {
		x.object = "completion"
	}

	preq := &provider.Request{
		Model:    x.model,
		Messages: req.Messages,
		Prompt:   req.Prompt,
		Options:  x.options,
	}

	debug.Log("engine", "opening stream",
		"provider", x.provider, "model", x.model,
		"completion", req.IsCompletion(), "stream", req.Stream)

	start := time.Now()
	var s *stream.Stream
	var err error
	if req.IsCompletion() {
		s, err = p.StreamComplete(ctx, preq)
	} else {
		s, err = p.StreamChat(ctx, preq)
	}
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(x.provider, x.model, outcome(ctx, err)).Inc()
		return mapStreamError(ctx, err)
	}
	defer s.Close()
	observability.ProviderLatency.WithLabelValues(x.provider, x.model).Observe(time.Since(start).Seconds())

	x.id = api.NewChatID()
	x.createdAt = time.Now().Unix()

	if req.Stream {
		err = e.relay(ctx, req, s, x, w)
	} else {
		err = e.collect(ctx, req, s, x, w)
	}

	status := outcome(ctx, err)
	observability.ProviderRequestsTotal.WithLabelValues(x.provider, x.model, status).Inc()
	observability.StreamDuration.WithLabelValues(x.provider, status).Observe(time.Since(start).Seconds())

	var failure *api.APIError
	if err != nil {
		failure = mapStreamError(ctx, err)
	}
	e.persist(ctx, req, x, failure)

	if failure != nil {
		return failure
	}
	return nil
}

// resolve returns the named provider, or the default one when name is empty.
func (e *Engine) resolve(name string) (provider.Provider, *api.APIError) {
	if name == "" {
		return e.providers.Default(), nil
	}
	p, ok := e.providers.Get(name)
	if !ok {
		return nil, api.NewInvalidRequestError("provider", fmt.Sprintf("unknown provider %q", name))
	}
	return p, nil
}

// relay forwards each delta as a chat.delta event, bracketed by
// chat.created and chat.completed.
func (e *Engine) relay(ctx context.Context, req *api.ChatRequest, s *stream.Stream, x *exchange, w transport.ResponseWriter) error {
	seq := 0
	emit := func(ev api.StreamEvent) error {
		ev.SequenceNumber = seq
		seq++
		return w.WriteEvent(ctx, ev)
	}

	if err := emit(api.StreamEvent{
		Type:     api.EventChatCreated,
		Response: &api.ChatResponse{ID: x.id, Object: x.object, Provider: x.provider, Model: x.model, CreatedAt: x.createdAt},
	}); err != nil {
		return err
	}

	err := drain(req, s, x, func(d api.ChatDelta) error {
		return emit(api.StreamEvent{Type: api.EventChatDelta, Delta: &d})
	})
	if err != nil {
		return err
	}

	return emit(api.StreamEvent{Type: api.EventChatCompleted, Response: x.response()})
}

// collect reads the whole stream and writes one response. Nothing is
// written if the stream fails.
func (e *Engine) collect(ctx context.Context, req *api.ChatRequest, s *stream.Stream, x *exchange, w transport.ResponseWriter) error {
	if err := drain(req, s, x, nil); err != nil {
		return err
	}
	return w.WriteResponse(ctx, x.response())
}

// drain appends every delta to the reply, calling fn (if set) for each.
// Completions are read through the text-only view.
func drain(req *api.ChatRequest, s *stream.Stream, x *exchange, fn func(api.ChatDelta) error) error {
	if req.IsCompletion() {
		for text, err := range s.Text() {
			if err != nil {
				return err
			}
			x.reply.WriteString(text)
			if fn != nil {
				if err := fn(api.ChatDelta{Role: api.RoleAssistant, Content: text}); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for d, err := range s.All() {
		if err != nil {
			return err
		}
		if d.Role == "" {
			d.Role = api.RoleAssistant
		}
		x.reply.WriteString(d.Content)
		if fn != nil {
			if err := fn(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// persist saves the transcript of the exchange. Saving outlives the
// request context so a cancelled client still leaves a record.
func (e *Engine) persist(ctx context.Context, req *api.ChatRequest, x *exchange, failure *api.APIError) {
	if e.store == nil || !req.ShouldStore() {
		return
	}

	t := &api.Transcript{
		ID:        x.id,
		Object:    "transcript",
		Provider:  x.provider,
		Model:     x.model,
		Messages:  req.Messages,
		Prompt:    req.Prompt,
		Options:   x.options,
		Reply:     x.reply.String(),
		Error:     failure,
		CreatedAt: x.createdAt,
	}

	if err := e.store.SaveTranscript(context.WithoutCancel(ctx), t); err != nil {
		observability.TranscriptsTotal.WithLabelValues("save", "error").Inc()
		e.logger.Warn("saving transcript failed",
			"id", t.ID,
			"request_id", transport.RequestIDFromContext(ctx),
			"error", err,
		)
		return
	}
	observability.TranscriptsTotal.WithLabelValues("save", "ok").Inc()
}

// outcome labels a finished request for metrics.
func outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case ctx.Err() != nil:
		return "cancelled"
	default:
		return "error"
	}
}

// mapStreamError converts provider and stream failures to API errors. A
// payload carrying an error from the remote service is a model error; a
// response that could not be understood or read is an upstream error.
func mapStreamError(ctx context.Context, err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if ctx.Err() != nil {
		return &api.APIError{
			Type:    api.ErrorTypeServerError,
			Code:    "cancelled",
			Message: "chat was cancelled",
		}
	}

	var de *stream.DecodeError
	if errors.As(err, &de) {
		if de.Reason == stream.ReasonRemote {
			return api.NewModelError(fmt.Sprintf("%s (frame %q)", de.Message, debug.Truncate(de.Frame, 200)))
		}
		return api.NewUpstreamError(string(de.Reason), de.Error())
	}

	var pe *stream.ProtocolError
	if errors.As(err, &pe) {
		return api.NewUpstreamError("unterminated_stream", pe.Error())
	}

	return api.NewUpstreamError("stream_read", err.Error())
}
