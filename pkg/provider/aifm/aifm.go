// Package aifm adapts NVIDIA AI Foundation Models endpoints. Requests go to
// the cloud function registered for the model; responses stream as
// "data: " prefixed chat-completion chunks terminated by "data: [DONE]".
package aifm

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/message"
	"github.com/rhuss/chatwire/pkg/provider"
	"github.com/rhuss/chatwire/pkg/provider/remote"
	"github.com/rhuss/chatwire/pkg/stream"
)

// Provider implements provider.Provider for AI Foundation Models.
type Provider struct {
	name         string
	defaultModel string
	functions    map[string]string
	client       *remote.Client
	dialect      stream.PrefixedDialect
	streamOpts   []stream.Option
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider. Zero config values fall back to the public
// endpoint and default model.
func New(cfg Config) (*Provider, error) {
	if cfg.Name == "" {
		cfg.Name = "aifm"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}

	functions := maps.Clone(Functions)
	maps.Copy(functions, cfg.Functions)
	if _, ok := functions[cfg.DefaultModel]; !ok {
		return nil, fmt.Errorf("aifm: default model %q has no function ID", cfg.DefaultModel)
	}

	client, err := remote.NewClient(remote.Config{
		Name:       cfg.Name,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		Breaker:    cfg.Breaker,
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Provider{
		name:         cfg.Name,
		defaultModel: cfg.DefaultModel,
		functions:    functions,
		client:       client,
		dialect:      stream.NewPrefixedDialect(),
		streamOpts:   cfg.StreamOptions,
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Dialect() stream.Dialect { return p.dialect }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Vision:       true,
		DefaultModel: p.defaultModel,
		Models:       slices.Sorted(maps.Keys(p.functions)),
	}
}

// FunctionID returns the cloud function serving model. An empty model
// selects the default.
func (p *Provider) FunctionID(model string) (string, error) {
	if model == "" {
		model = p.defaultModel
	}
	id, ok := p.functions[model]
	if !ok {
		return "", api.NewInvalidRequestError("model", fmt.Sprintf("unknown model: %s", model))
	}
	return id, nil
}

func (p *Provider) StreamChat(ctx context.Context, req *provider.Request) (*stream.Stream, error) {
	return p.open(ctx, req, message.ToWireAll(req.Messages))
}

func (p *Provider) StreamComplete(ctx context.Context, req *provider.Request) (*stream.Stream, error) {
	return p.open(ctx, req, message.ToWireAll(message.FromPrompt(req.Prompt)))
}

func (p *Provider) open(ctx context.Context, req *provider.Request, msgs []message.WireMessage) (*stream.Stream, error) {
	fn, err := p.FunctionID(req.Model)
	if err != nil {
		return nil, err
	}

	body := chatRequest{
		Messages:    msgs,
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
		MaxTokens:   req.Options.MaxTokens,
		Stop:        req.Options.Stop,
		Stream:      true,
	}
	return provider.Open(ctx, p.client, "/"+fn, body, p.dialect, p.streamOpts...)
}

func (p *Provider) Close() error {
	return p.client.Close()
}
