package nemo

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/chatwire/pkg/provider/remote"
	"github.com/rhuss/chatwire/pkg/stream"
)

const (
	// DefaultBaseURL is the NeMo LLM service model endpoint.
	DefaultBaseURL = "https://api.llm.ngc.nvidia.com/v1/models"

	// DefaultModel is used when neither the config nor the request names one.
	DefaultModel = "gpt-43b-905"
)

// Config holds configuration for the NeMo LLM adapter.
type Config struct {
	// Name identifies the provider instance. Defaults to "nemo".
	Name string

	BaseURL string
	APIKey  string

	DefaultModel string

	// Models restricts the accepted model names. Empty accepts any.
	Models []string

	// Timeout bounds the wait for response headers.
	Timeout time.Duration

	Breaker remote.BreakerConfig

	// StreamOptions are applied to every stream the provider opens.
	StreamOptions []stream.Option

	HTTPClient *http.Client
	Logger     *slog.Logger
}
