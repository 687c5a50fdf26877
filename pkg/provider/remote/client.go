// Package remote issues streaming chat requests to vendor HTTP endpoints.
// It owns request construction, authentication headers, error mapping and
// a circuit breaker around request issuance. Decoding the response body is
// left to the stream package.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/debug"
	"github.com/rhuss/chatwire/pkg/observability"
)

const (
	defaultTimeout            = 120 * time.Second
	defaultBreakerMaxFailures = 5
	defaultBreakerTimeout     = 30 * time.Second
	defaultBreakerInterval    = 60 * time.Second
)

// BreakerConfig configures the circuit breaker in front of a backend.
type BreakerConfig struct {
	// Disabled turns the breaker off.
	Disabled bool
	// MaxFailures is the number of consecutive failures that open the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration
	// Interval clears the failure counts periodically while closed.
	Interval time.Duration
}

// Config holds the connection settings for one backend.
type Config struct {
	// Name labels the backend in logs, errors and metrics.
	Name    string
	BaseURL string
	APIKey  string

	// Timeout bounds the wait for response headers. The body of a stream
	// is not subject to it; the request context governs the stream.
	Timeout time.Duration

	// Headers are added to every request.
	Headers map[string]string

	Breaker BreakerConfig

	// HTTPClient replaces the default client. Its Timeout should be zero.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client posts JSON requests and returns the open response for streaming.
// It is safe for concurrent use.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	headers    map[string]string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	logger     *slog.Logger
}

// NewClient creates a Client. BaseURL is required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote: %s: base URL is required", cfg.Name)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: newTransport(cfg.Timeout)}
	}

	c := &Client{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		headers:    cfg.Headers,
		httpClient: httpClient,
		logger:     logger,
	}
	if !cfg.Breaker.Disabled {
		c.breaker = newBreaker(cfg.Name, cfg.Breaker, logger)
	}
	return c, nil
}

func newTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       120 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

func newBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[*http.Response] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	observability.RecordBreakerState(name, gobreaker.StateClosed)

	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "provider:" + name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(breaker string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", breaker,
				"from", from.String(),
				"to", to.String(),
			)
			observability.RecordBreakerState(name, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err) || errors.Is(err, context.Canceled)
		},
	})
}

// Name returns the backend label.
func (c *Client) Name() string {
	return c.name
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Post sends payload as JSON to baseURL+path and returns the response once
// its status is 2xx. The caller owns the response body. Non-2xx responses
// are closed and returned as *api.APIError.
func (c *Client) Post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.baseURL + path
	debug.Log("providers", "request", "provider", c.name, "method", http.MethodPost, "url", url, "body_bytes", len(body))
	debug.Raw("providers", string(body))

	issue := func() (*http.Response, error) {
		return c.do(ctx, url, body)
	}

	if c.breaker == nil {
		return issue()
	}

	resp, err := c.breaker.Execute(issue)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, api.NewUpstreamError("circuit_open",
			fmt.Sprintf("provider %q is unavailable: %s", c.name, err.Error()))
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("remote: %s: %w", c.name, ctx.Err())
		}
		return nil, MapNetworkError(err)
	}

	debug.Log("providers", "response",
		"provider", c.name,
		"status", resp.StatusCode,
		"elapsed", time.Since(start).String(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := MapHTTPError(resp)
		c.logger.Warn("backend returned error status",
			"provider", c.name,
			"status", resp.StatusCode,
			"error", apiErr.Message,
		)
		return nil, apiErr
	}

	return resp, nil
}

// State returns the breaker state, or closed when the breaker is disabled.
func (c *Client) State() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
