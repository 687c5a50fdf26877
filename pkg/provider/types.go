package provider

import "github.com/rhuss/chatwire/pkg/api"

// Request is the provider-facing request, stripped of transport and
// storage concerns.
type Request struct {
	// Model selects the vendor model. Empty means the provider default.
	Model string

	Messages []api.ChatMessage
	Prompt   string

	Options api.CompletionOptions
}

// Capabilities declares what a provider accepts. The engine checks
// requests against it before opening a stream.
type Capabilities struct {
	// Vision indicates whether image parts are forwarded.
	Vision bool

	// TopK indicates whether the top_k option reaches the backend.
	TopK bool

	// DefaultModel is used when a request names no model.
	DefaultModel string

	// Models lists the accepted model names. Empty means any.
	Models []string
}

// Info is the public description of a configured provider.
type Info struct {
	Name         string   `json:"name"`
	Dialect      string   `json:"dialect"`
	DefaultModel string   `json:"default_model"`
	Models       []string `json:"models,omitempty"`
	Vision       bool     `json:"vision"`
}

// Describe returns the public description of p.
func Describe(p Provider) Info {
	caps := p.Capabilities()
	return Info{
		Name:         p.Name(),
		Dialect:      p.Dialect().Name(),
		DefaultModel: caps.DefaultModel,
		Models:       caps.Models,
		Vision:       caps.Vision,
	}
}
