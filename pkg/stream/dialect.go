package stream

import "strings"

// FrameKind is the classification of a single frame.
type FrameKind uint8

const (
	// FrameIgnorable frames carry nothing (blank lines, keep-alives).
	FrameIgnorable FrameKind = iota
	// FramePayload frames carry text for the decoder.
	FramePayload
	// FrameSentinel frames end the stream.
	FrameSentinel
)

func (k FrameKind) String() string {
	switch k {
	case FramePayload:
		return "payload"
	case FrameSentinel:
		return "sentinel"
	default:
		return "ignorable"
	}
}

// A Dialect describes one vendor's streaming wire format: how frames are
// classified and how a payload maps onto a delta.
type Dialect interface {
	// Name identifies the dialect in errors, logs and metrics.
	Name() string

	// Classify decides what a frame is. For payload frames it also returns
	// the text to decode. Non-empty content is never dropped here.
	Classify(frame string) (FrameKind, string)

	// Decode parses a payload. Malformed JSON is returned as a
	// *DecodeError with ReasonMalformed; every well-formed payload yields
	// an Outcome.
	Decode(payload string) (Outcome, error)
}

const (
	defaultMarker     = "data: "
	defaultTerminator = "[DONE]"
)

// PrefixedDialect handles server-sent-event style streams where each line
// starts with a fixed marker and a terminator payload ends the stream.
// Payloads are chat-completion chunks: choices[0].delta.{role,content}.
type PrefixedDialect struct {
	Marker     string
	Terminator string
}

// NewPrefixedDialect returns the dialect for "data: " lines terminated by
// "data: [DONE]".
func NewPrefixedDialect() PrefixedDialect {
	return PrefixedDialect{Marker: defaultMarker, Terminator: defaultTerminator}
}

func (PrefixedDialect) Name() string { return "prefixed" }

// Classify cuts len(Marker) bytes off the front of the frame without
// checking them, then trims surrounding whitespace.
func (d PrefixedDialect) Classify(frame string) (FrameKind, string) {
	if len(frame) <= len(d.Marker) {
		return FrameIgnorable, ""
	}
	text := strings.TrimSpace(frame[len(d.Marker):])
	switch text {
	case "":
		return FrameIgnorable, ""
	case d.Terminator:
		return FrameSentinel, ""
	default:
		return FramePayload, text
	}
}

func (d PrefixedDialect) Decode(payload string) (Outcome, error) {
	return decodePrefixed(d.Name(), payload)
}

// RawDialect handles newline-delimited JSON where every line is a payload
// of the form {"text": "..."}. There is no sentinel; the stream ends with
// the body.
type RawDialect struct{}

// NewRawDialect returns the newline-delimited JSON dialect.
func NewRawDialect() RawDialect {
	return RawDialect{}
}

func (RawDialect) Name() string { return "raw" }

// Classify passes every non-empty frame through verbatim.
func (RawDialect) Classify(frame string) (FrameKind, string) {
	if frame == "" {
		return FrameIgnorable, ""
	}
	return FramePayload, frame
}

func (d RawDialect) Decode(payload string) (Outcome, error) {
	return decodeRaw(d.Name(), payload)
}
