// Package nemo adapts the NVIDIA NeMo LLM service. The chat endpoint
// streams newline-delimited JSON objects of the form {"text": "..."} and
// has no end marker; the stream ends with the response body.
package nemo

import (
	"context"
	"net/url"

	"github.com/rhuss/chatwire/pkg/message"
	"github.com/rhuss/chatwire/pkg/provider"
	"github.com/rhuss/chatwire/pkg/provider/remote"
	"github.com/rhuss/chatwire/pkg/stream"
)

// Provider implements provider.Provider for NeMo.
type Provider struct {
	name         string
	defaultModel string
	models       []string
	client       *remote.Client
	dialect      stream.RawDialect
	streamOpts   []stream.Option
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider. Zero config values fall back to the public
// endpoint and default model.
func New(cfg Config) (*Provider, error) {
	if cfg.Name == "" {
		cfg.Name = "nemo"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}

	client, err := remote.NewClient(remote.Config{
		Name:       cfg.Name,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		Headers:    map[string]string{"x-stream": "true"},
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
		models:       cfg.Models,
		client:       client,
		dialect:      stream.NewRawDialect(),
		streamOpts:   cfg.StreamOptions,
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Dialect() stream.Dialect { return p.dialect }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Vision:       true,
		TopK:         true,
		DefaultModel: p.defaultModel,
		Models:       p.models,
	}
}

func (p *Provider) StreamChat(ctx context.Context, req *provider.Request) (*stream.Stream, error) {
	return p.open(ctx, req, message.ToWireAll(req.Messages))
}

func (p *Provider) StreamComplete(ctx context.Context, req *provider.Request) (*stream.Stream, error) {
	return p.open(ctx, req, message.ToWireAll(message.FromPrompt(req.Prompt)))
}

func (p *Provider) open(ctx context.Context, req *provider.Request, msgs []message.WireMessage) (*stream.Stream, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body := chatRequest{
		ChatContext:      msgs,
		Temperature:      req.Options.Temperature,
		TopP:             req.Options.TopP,
		TopK:             req.Options.TopK,
		TokensToGenerate: req.Options.MaxTokens,
		Stop:             req.Options.Stop,
	}
	return provider.Open(ctx, p.client, "/"+url.PathEscape(model)+"/chat", body, p.dialect, p.streamOpts...)
}

func (p *Provider) Close() error {
	return p.client.Close()
}
