package observability

import (
	"github.com/sony/gobreaker/v2"

	"github.com/rhuss/chatwire/pkg/stream"
)

// StreamObserver feeds stream decoding events into the stream metrics.
type StreamObserver struct{}

var _ stream.Observer = StreamObserver{}

func (StreamObserver) Frame(dialect string, kind stream.FrameKind) {
	StreamFramesTotal.WithLabelValues(dialect, kind.String()).Inc()
}

func (StreamObserver) Delta(dialect string) {
	StreamDeltasTotal.WithLabelValues(dialect).Inc()
}

func (StreamObserver) DecodeError(dialect string, reason stream.Reason) {
	StreamDecodeErrorsTotal.WithLabelValues(dialect, string(reason)).Inc()
}

func (StreamObserver) Residual(dialect string) {
	StreamResidualTotal.WithLabelValues(dialect).Inc()
}

// RecordBreakerState publishes a circuit breaker transition.
func RecordBreakerState(provider string, to gobreaker.State) {
	BreakerState.WithLabelValues(provider).Set(float64(to))
	BreakerTransitionsTotal.WithLabelValues(provider, to.String()).Inc()
}
