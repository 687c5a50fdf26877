package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/observability"
	"github.com/rhuss/chatwire/pkg/provider"
	"github.com/rhuss/chatwire/pkg/provider/registry"
	"github.com/rhuss/chatwire/pkg/storage/memory"
	"github.com/rhuss/chatwire/pkg/stream"
	"github.com/rhuss/chatwire/pkg/transport"
)

// fakeProvider serves a canned raw-dialect body.
type fakeProvider struct {
	name    string
	body    string
	openErr error
	caps    provider.Capabilities

	lastReq      *provider.Request
	lastComplete bool
}

func (p *fakeProvider) Name() string                        { return p.name }
func (p *fakeProvider) Dialect() stream.Dialect             { return stream.NewRawDialect() }
func (p *fakeProvider) Capabilities() provider.Capabilities { return p.caps }
func (p *fakeProvider) Close() error                        { return nil }

func (p *fakeProvider) StreamChat(ctx context.Context, req *provider.Request) (*stream.Stream, error) {
	return p.open(req, false)
}

func (p *fakeProvider) StreamComplete(ctx context.Context, req *provider.Request) (*stream.Stream, error) {
	return p.open(req, true)
}

func (p *fakeProvider) open(req *provider.Request, complete bool) (*stream.Stream, error) {
	p.lastReq = req
	p.lastComplete = complete
	if p.openErr != nil {
		return nil, p.openErr
	}
	return stream.New(io.NopCloser(strings.NewReader(p.body)), stream.NewRawDialect()), nil
}

func newFake(name, body string) *fakeProvider {
	return &fakeProvider{
		name: name,
		body: body,
		caps: provider.Capabilities{Vision: true, DefaultModel: name + "-default"},
	}
}

// recorder is a transport.ResponseWriter that keeps what it was given.
type recorder struct {
	events   []api.StreamEvent
	response *api.ChatResponse
}

func (r *recorder) WriteEvent(_ context.Context, ev api.StreamEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) WriteResponse(_ context.Context, resp *api.ChatResponse) error {
	r.response = resp
	return nil
}

func (r *recorder) Flush() error { return nil }

var _ transport.ResponseWriter = (*recorder)(nil)

const helloBody = `{"text":"Hel"}` + "\n" + `{"text":"lo"}` + "\n"

func userMessage(text string) []api.ChatMessage {
	return []api.ChatMessage{{Role: api.RoleUser, Content: api.TextContent(text)}}
}

func newEngine(t *testing.T, store transport.TranscriptStore, cfg Config, ps ...provider.Provider) *Engine {
	t.Helper()
	e, err := New(registry.FromProviders(ps...), store, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewRequiresProvider(t *testing.T) {
	if _, err := New(registry.FromProviders(), nil, Config{}); err == nil {
		t.Error("expected error for an empty registry")
	}
}

func TestChatNonStreaming(t *testing.T) {
	store := memory.New(0)
	fake := newFake("nemo", helloBody)
	e := newEngine(t, store, Config{}, fake)

	w := &recorder{}
	if err := e.Chat(context.Background(), &api.ChatRequest{Messages: userMessage("hi")}, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	resp := w.response
	if resp == nil {
		t.Fatal("no response written")
	}
	if len(w.events) != 0 {
		t.Errorf("non-streaming chat wrote %d events", len(w.events))
	}
	if !api.ValidateChatID(resp.ID) {
		t.Errorf("ID = %q", resp.ID)
	}
	if resp.Message.Role != api.RoleAssistant || resp.Message.Content.Text != "Hello" {
		t.Errorf("message = %+v", resp.Message)
	}
	if resp.Provider != "nemo" || resp.Model != "nemo-default" || resp.Object != "chat" {
		t.Errorf("response = %+v", resp)
	}
	if fake.lastComplete {
		t.Error("chat request was sent as a completion")
	}

	tr, err := store.GetTranscript(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("transcript not stored: %v", err)
	}
	if tr.Reply != "Hello" || tr.Failed() || len(tr.Messages) != 1 {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestChatStreaming(t *testing.T) {
	e := newEngine(t, nil, Config{}, newFake("nemo", helloBody))

	w := &recorder{}
	err := e.Chat(context.Background(), &api.ChatRequest{Messages: userMessage("hi"), Stream: true}, w)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	wantTypes := []api.StreamEventType{api.EventChatCreated, api.EventChatDelta, api.EventChatDelta, api.EventChatCompleted}
	if len(w.events) != len(wantTypes) {
		t.Fatalf("got %d events, want %d", len(w.events), len(wantTypes))
	}
	for i, ev := range w.events {
		if ev.Type != wantTypes[i] {
			t.Errorf("events[%d].Type = %s, want %s", i, ev.Type, wantTypes[i])
		}
		if ev.SequenceNumber != i {
			t.Errorf("events[%d].SequenceNumber = %d", i, ev.SequenceNumber)
		}
	}

	created, completed := w.events[0].Response, w.events[3].Response
	if created.ID != completed.ID {
		t.Errorf("created ID %q != completed ID %q", created.ID, completed.ID)
	}
	if w.events[1].Delta.Content != "Hel" || w.events[1].Delta.Role != api.RoleAssistant {
		t.Errorf("first delta = %+v", w.events[1].Delta)
	}
	if completed.Message.Content.Text != "Hello" {
		t.Errorf("completed message = %q", completed.Message.Content.Text)
	}
	if w.response != nil {
		t.Error("streaming chat also wrote a full response")
	}
}

func TestChatCompletion(t *testing.T) {
	temp, topK := 0.3, 8
	fake := newFake("aifm", helloBody)
	e := newEngine(t, nil, Config{
		Defaults: api.CompletionOptions{Temperature: &temp, TopK: &topK, Stop: []string{"\n\n"}},
	}, fake)

	reqTemp := 0.9
	req := &api.ChatRequest{Prompt: "say hello", Stream: true, Model: "mistral-7b"}
	req.Temperature = &reqTemp

	w := &recorder{}
	if err := e.Chat(context.Background(), req, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if !fake.lastComplete {
		t.Error("prompt request was not sent as a completion")
	}
	got := fake.lastReq
	if got.Prompt != "say hello" || got.Model != "mistral-7b" {
		t.Errorf("provider request = %+v", got)
	}
	if *got.Options.Temperature != 0.9 {
		t.Errorf("temperature = %v, request value should win", *got.Options.Temperature)
	}
	if got.Options.TopK == nil || *got.Options.TopK != 8 || len(got.Options.Stop) != 1 {
		t.Errorf("defaults not merged: %+v", got.Options)
	}

	last := w.events[len(w.events)-1]
	if last.Response.Object != "completion" || last.Response.Message.Content.Text != "Hello" {
		t.Errorf("completed = %+v", last.Response)
	}
}

func TestChatRoutesByProviderName(t *testing.T) {
	aifm := newFake("aifm", `{"text":"from aifm"}`+"\n")
	nemo := newFake("nemo", `{"text":"from nemo"}`+"\n")
	e := newEngine(t, nil, Config{}, aifm, nemo)

	tests := []struct {
		provider string
		want     string
	}{
		{"", "from aifm"},
		{"aifm", "from aifm"},
		{"nemo", "from nemo"},
	}
	for _, tt := range tests {
		w := &recorder{}
		err := e.Chat(context.Background(), &api.ChatRequest{Provider: tt.provider, Prompt: "x"}, w)
		if err != nil {
			t.Fatalf("provider %q: %v", tt.provider, err)
		}
		if got := w.response.Message.Content.Text; got != tt.want {
			t.Errorf("provider %q: reply = %q, want %q", tt.provider, got, tt.want)
		}
	}

	if got := e.Providers(); len(got) != 2 || got[1].Name != "nemo" {
		t.Errorf("Providers = %+v", got)
	}
}

func TestChatRequestErrors(t *testing.T) {
	noVision := newFake("text-only", helloBody)
	noVision.caps.Vision = false
	noVision.caps.Models = []string{"small"}
	e := newEngine(t, nil, Config{}, noVision)

	tests := []struct {
		name      string
		req       *api.ChatRequest
		wantParam string
	}{
		{"no input", &api.ChatRequest{}, "messages"},
		{"unknown provider", &api.ChatRequest{Provider: "openai", Prompt: "x"}, "provider"},
		{"unknown model", &api.ChatRequest{Model: "large", Prompt: "x"}, "model"},
		{"image to text-only provider", &api.ChatRequest{Messages: []api.ChatMessage{{
			Role:    api.RoleUser,
			Content: api.PartsContent(api.TextPart("what is this"), api.ImagePart("data:image/png;base64,QUJD")),
		}}}, "messages[0].content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Chat(context.Background(), tt.req, &recorder{})
			var apiErr *api.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *api.APIError", err)
			}
			if apiErr.Type != api.ErrorTypeInvalidRequest || apiErr.Param != tt.wantParam {
				t.Errorf("err = %+v, want invalid_request on %q", apiErr, tt.wantParam)
			}
		})
	}
}

func TestChatStreamErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantType  api.ErrorType
		wantCode  string
		wantReply string
	}{
		{"remote error", `{"text":"par"}` + "\n" + `{"error":"function is scaling up"}` + "\n", api.ErrorTypeModelError, "", "par"},
		{"malformed payload", `{"text":"ok"}` + "\n" + `{"text":` + "\n", api.ErrorTypeUpstreamError, string(stream.ReasonMalformed), "ok"},
		{"unknown shape", `{"status":"queued"}` + "\n", api.ErrorTypeUpstreamError, string(stream.ReasonUnknownShape), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New(0)
			e := newEngine(t, store, Config{}, newFake("nemo", tt.body))

			w := &recorder{}
			err := e.Chat(context.Background(), &api.ChatRequest{Prompt: "x", Stream: true}, w)

			var apiErr *api.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *api.APIError", err)
			}
			if apiErr.Type != tt.wantType || apiErr.Code != tt.wantCode {
				t.Errorf("err = %+v, want %s/%q", apiErr, tt.wantType, tt.wantCode)
			}
			if tt.wantType == api.ErrorTypeModelError {
				want := `function is scaling up (frame "{\"error\":\"function is scaling up\"}")`
				if apiErr.Message != want {
					t.Errorf("message = %q, want %q", apiErr.Message, want)
				}
			}

			if w.events[0].Type != api.EventChatCreated {
				t.Errorf("first event = %s", w.events[0].Type)
			}
			for _, ev := range w.events {
				if ev.IsTerminal() {
					t.Errorf("engine wrote terminal event %s; the transport reports errors", ev.Type)
				}
			}

			tr, err := store.GetTranscript(context.Background(), w.events[0].Response.ID)
			if err != nil {
				t.Fatalf("failed exchange not stored: %v", err)
			}
			if !tr.Failed() || tr.Reply != tt.wantReply {
				t.Errorf("transcript = %+v", tr)
			}
		})
	}
}

func TestChatOpenError(t *testing.T) {
	store := memory.New(0)
	fake := newFake("nemo", "")
	fake.openErr = &api.APIError{Type: api.ErrorTypeInvalidRequest, Message: "bad key"}
	e := newEngine(t, store, Config{}, fake)

	err := e.Chat(context.Background(), &api.ChatRequest{Prompt: "x"}, &recorder{})
	if !errors.Is(err, fake.openErr) {
		t.Errorf("err = %v, want the provider's error", err)
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d transcripts, want 0", store.Len())
	}
}

func TestChatStoreOptOut(t *testing.T) {
	store := memory.New(0)
	e := newEngine(t, store, Config{}, newFake("nemo", helloBody))

	off := false
	if err := e.Chat(context.Background(), &api.ChatRequest{Prompt: "x", Store: &off}, &recorder{}); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d transcripts, want 0", store.Len())
	}
}

func TestChatCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := newFake("nemo", "")
	fake.openErr = context.Canceled
	cancel()
	e := newEngine(t, nil, Config{}, fake)

	err := e.Chat(ctx, &api.ChatRequest{Prompt: "x"}, &recorder{})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "cancelled" {
		t.Errorf("err = %v, want cancelled", err)
	}
}

func TestChatRecordsMetrics(t *testing.T) {
	e := newEngine(t, nil, Config{}, newFake("metrics-test", helloBody))

	before := counterValue(t, observability.ProviderRequestsTotal, "metrics-test", "metrics-test-default", "ok")
	if err := e.Chat(context.Background(), &api.ChatRequest{Prompt: "x"}, &recorder{}); err != nil {
		t.Fatal(err)
	}
	if d := counterValue(t, observability.ProviderRequestsTotal, "metrics-test", "metrics-test-default", "ok") - before; d != 1 {
		t.Errorf("ok requests delta = %v, want 1", d)
	}
}

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
