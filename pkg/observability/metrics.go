// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the chatwire gateway and the streams it decodes.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets are histogram buckets for inference latencies, 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts gateway HTTP requests by method, status class and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwire_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records gateway request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatwire_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks active SSE responses.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatwire_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ProviderRequestsTotal counts upstream requests by outcome.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwire_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records the time until the upstream answered with
	// response headers.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatwire_provider_latency_seconds",
			Help:    "Provider time to first byte",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// StreamDuration records how long a relayed stream stayed open.
	StreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatwire_stream_duration_seconds",
			Help:    "Stream duration",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "status"},
	)

	// StreamFramesTotal counts classified frames.
	StreamFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwire_stream_frames_total",
			Help: "Stream frames by kind",
		},
		[]string{"dialect", "kind"},
	)

	// StreamDeltasTotal counts decoded deltas.
	StreamDeltasTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwire_stream_deltas_total",
			Help: "Decoded deltas",
		},
		[]string{"dialect"},
	)

	// StreamDecodeErrorsTotal counts payloads that failed to decode.
	StreamDecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwire_stream_decode_errors_total",
			Help: "Decode errors by reason",
		},
		[]string{"dialect", "reason"},
	)

	// StreamResidualTotal counts streams that ended with an unterminated line.
	StreamResidualTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwire_stream_residual_total",
			Help: "Unterminated residuals at end of stream",
		},
		[]string{"dialect"},
	)

	// BreakerState exposes each provider's circuit breaker state
	// (0 closed, 1 half-open, 2 open).
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatwire_breaker_state",
			Help: "Circuit breaker state",
		},
		[]string{"provider"},
	)

	// BreakerTransitionsTotal counts circuit breaker state changes.
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwire_breaker_transitions_total",
			Help: "Circuit breaker state changes",
		},
		[]string{"provider", "to"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwire_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)

	// TranscriptsTotal counts transcript store operations.
	TranscriptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwire_transcripts_total",
			Help: "Transcript store operations",
		},
		[]string{"op", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ProviderRequestsTotal,
		ProviderLatency,
		StreamDuration,
		StreamFramesTotal,
		StreamDeltasTotal,
		StreamDecodeErrorsTotal,
		StreamResidualTotal,
		BreakerState,
		BreakerTransitionsTotal,
		RateLimitRejectedTotal,
		TranscriptsTotal,
	)
}
