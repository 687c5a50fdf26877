package main

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/config"
	"github.com/rhuss/chatwire/pkg/debug"
	"github.com/rhuss/chatwire/pkg/provider"
	"github.com/rhuss/chatwire/pkg/provider/registry"
	"github.com/rhuss/chatwire/pkg/provider/remote"
)

type flags struct {
	provider string
	baseURL  string
	apiKey   string
	model    string

	temperature float64
	topP        float64
	topK        int
	maxTokens   int
	stop        []string

	strict bool
	debug  string
}

// options returns only the sampling parameters set on the command line.
func (f *flags) options(cmd *cobra.Command) api.CompletionOptions {
	var o api.CompletionOptions
	set := cmd.Flags().Changed
	if set("temperature") {
		o.Temperature = &f.temperature
	}
	if set("top-p") {
		o.TopP = &f.topP
	}
	if set("top-k") {
		o.TopK = &f.topK
	}
	if set("max-tokens") {
		o.MaxTokens = &f.maxTokens
	}
	if set("stop") {
		o.Stop = f.stop
	}
	return o
}

// open validates req against the provider before any request is sent.
func (f *flags) open(req *api.ChatRequest) (provider.Provider, error) {
	if apiErr := api.ValidateRequest(req, api.DefaultValidationConfig()); apiErr != nil {
		return nil, apiErr
	}
	p, err := f.build()
	if err != nil {
		return nil, err
	}
	if apiErr := provider.ValidateCapabilities(p.Capabilities(), req); apiErr != nil {
		p.Close()
		return nil, apiErr
	}
	return p, nil
}

func (f *flags) build() (provider.Provider, error) {
	level := "WARN"
	if f.debug != "" {
		level = "DEBUG"
	}
	debug.Init(debug.Options{Categories: f.debug, Level: level})

	key := f.apiKey
	if key == "" {
		key = os.Getenv(apiKeyEnv(f.provider))
	}

	reg, err := registry.New([]config.ProviderConfig{{
		Type:              f.provider,
		BaseURL:           f.baseURL,
		APIKey:            key,
		StrictTermination: f.strict,
	}}, "", registry.Options{
		// Each run sends a single request.
		Breaker: remote.BreakerConfig{Disabled: true},
	})
	if err != nil {
		return nil, err
	}
	return reg.Default(), nil
}

func apiKeyEnv(providerType string) string {
	return "CHATWIRE_" + strings.ToUpper(providerType) + "_API_KEY"
}

// userContent builds the user message, attaching images as data URIs.
func userContent(text string, images []string) (api.Content, error) {
	if len(images) == 0 {
		return api.TextContent(text), nil
	}
	parts := []api.ContentPart{api.TextPart(text)}
	for _, path := range images {
		b, err := readFile(path)
		if err != nil {
			return api.Content{}, err
		}
		parts = append(parts, api.ImagePart(dataURI(b)))
	}
	return api.PartsContent(parts...), nil
}

func dataURI(b []byte) string {
	mime := http.DetectContentType(b)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(b))
}
