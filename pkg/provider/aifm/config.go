package aifm

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/chatwire/pkg/provider/remote"
	"github.com/rhuss/chatwire/pkg/stream"
)

const (
	// DefaultBaseURL is the NVIDIA Cloud Functions invocation endpoint.
	DefaultBaseURL = "https://api.nvcf.nvidia.com/v2/nvcf/pexec/functions"

	// DefaultModel is used when neither the config nor the request names one.
	DefaultModel = "codellama-70b"
)

// Functions maps model names to the cloud function that serves them.
var Functions = map[string]string{
	"codellama-70b": "2ae529dc-f728-4a46-9b8d-2697213666d8",
	"llama2-70b":    "0e349b44-440a-44e1-93e9-abe8dcb27158",
	"mistral-7b":    "35ec3354-2681-4d0e-a8dd-80325dcf7c63",
	"mistral-8x7b":  "8f4118ba-60a8-4e6b-8574-e38a4067a4a3",
}

// Config holds configuration for the AI Foundation Models adapter.
type Config struct {
	// Name identifies the provider instance. Defaults to "aifm".
	Name string

	BaseURL string
	APIKey  string

	DefaultModel string

	// Functions adds to or overrides the built-in model table.
	Functions map[string]string

	// Timeout bounds the wait for response headers.
	Timeout time.Duration

	Breaker remote.BreakerConfig

	// StreamOptions are applied to every stream the provider opens.
	StreamOptions []stream.Option

	HTTPClient *http.Client
	Logger     *slog.Logger
}
