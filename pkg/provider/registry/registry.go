// Package registry builds the configured providers and looks them up by
// name.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/chatwire/pkg/config"
	"github.com/rhuss/chatwire/pkg/provider"
	"github.com/rhuss/chatwire/pkg/provider/aifm"
	"github.com/rhuss/chatwire/pkg/provider/nemo"
	"github.com/rhuss/chatwire/pkg/provider/remote"
	"github.com/rhuss/chatwire/pkg/stream"
)

// Options are shared by every provider the registry builds.
type Options struct {
	Breaker remote.BreakerConfig

	// Observer receives stream decoding events, typically
	// observability.StreamObserver.
	Observer stream.Observer

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Registry holds providers in configuration order. It is read-only after
// New and safe for concurrent use.
type Registry struct {
	providers   []provider.Provider
	byName      map[string]provider.Provider
	defaultName string
}

// New builds one provider per config entry. An entry without a name is
// named after its type. defaultName selects the default provider; empty
// means the first one.
func New(cfgs []config.ProviderConfig, defaultName string, opts Options) (*Registry, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Registry{byName: make(map[string]provider.Provider, len(cfgs))}
	for i, cfg := range cfgs {
		p, err := build(cfg, opts)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("providers[%d]: %w", i, err)
		}
		if _, dup := r.byName[p.Name()]; dup {
			p.Close()
			r.Close()
			return nil, fmt.Errorf("providers[%d]: duplicate provider name %q", i, p.Name())
		}
		r.providers = append(r.providers, p)
		r.byName[p.Name()] = p
		opts.Logger.Info("provider configured",
			"name", p.Name(),
			"type", cfg.Type,
			"dialect", p.Dialect().Name(),
			"default_model", p.Capabilities().DefaultModel,
		)
	}

	if len(r.providers) == 0 {
		return nil, errors.New("no providers configured")
	}
	if defaultName == "" {
		defaultName = r.providers[0].Name()
	}
	if _, ok := r.byName[defaultName]; !ok {
		r.Close()
		return nil, fmt.Errorf("default provider %q is not configured", defaultName)
	}
	r.defaultName = defaultName

	return r, nil
}

// FromProviders wraps already constructed providers. The first one is the
// default.
func FromProviders(ps ...provider.Provider) *Registry {
	r := &Registry{byName: make(map[string]provider.Provider, len(ps))}
	for _, p := range ps {
		r.providers = append(r.providers, p)
		r.byName[p.Name()] = p
	}
	if len(ps) > 0 {
		r.defaultName = ps[0].Name()
	}
	return r
}

func build(cfg config.ProviderConfig, opts Options) (provider.Provider, error) {
	streamOpts := []stream.Option{stream.WithLogger(opts.Logger)}
	if opts.Observer != nil {
		streamOpts = append(streamOpts, stream.WithObserver(opts.Observer))
	}
	if cfg.StrictTermination {
		streamOpts = append(streamOpts, stream.WithStrictTermination())
	}

	switch cfg.Type {
	case "aifm":
		return aifm.New(aifm.Config{
			Name:          cfg.Name,
			BaseURL:       cfg.BaseURL,
			APIKey:        cfg.APIKey,
			DefaultModel:  cfg.DefaultModel,
			Functions:     cfg.Functions,
			Timeout:       cfg.Timeout,
			Breaker:       opts.Breaker,
			StreamOptions: streamOpts,
			HTTPClient:    opts.HTTPClient,
			Logger:        opts.Logger,
		})
	case "nemo":
		return nemo.New(nemo.Config{
			Name:          cfg.Name,
			BaseURL:       cfg.BaseURL,
			APIKey:        cfg.APIKey,
			DefaultModel:  cfg.DefaultModel,
			Models:        cfg.Models,
			Timeout:       cfg.Timeout,
			Breaker:       opts.Breaker,
			StreamOptions: streamOpts,
			HTTPClient:    opts.HTTPClient,
			Logger:        opts.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (provider.Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Default returns the default provider, or nil for an empty registry.
func (r *Registry) Default() provider.Provider {
	return r.byName[r.defaultName]
}

// Providers describes every provider in configuration order.
func (r *Registry) Providers() []provider.Info {
	infos := make([]provider.Info, len(r.providers))
	for i, p := range r.providers {
		infos[i] = provider.Describe(p)
	}
	return infos
}

// Close closes every provider.
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
