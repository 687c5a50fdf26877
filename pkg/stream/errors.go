package stream

import (
	"errors"
	"fmt"
)

// Reason classifies a DecodeError.
type Reason string

const (
	// ReasonMalformed means the payload was not a single valid JSON value
	// of the expected structure.
	ReasonMalformed Reason = "malformed-structure"

	// ReasonRemote means the payload carried an explicit error field.
	ReasonRemote Reason = "remote-error"

	// ReasonUnknownShape means the payload was valid JSON with neither a
	// content field nor an error field.
	ReasonUnknownShape Reason = "unknown-shape"
)

// ErrStreamClosed is returned by Recv after Close.
var ErrStreamClosed = errors.New("stream: closed")

// DecodeError reports a payload that could not be turned into a delta.
// Frame holds the frame exactly as read from the body, marker and
// whitespace included. Payload is the part handed to the decoder. When a
// dialect's Decode is called directly both hold the payload.
type DecodeError struct {
	Dialect string
	Reason  Reason
	Frame   string
	Payload string
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Reason)
	}
	return fmt.Sprintf("stream: %s: %s: %s (frame %q)", e.Dialect, e.Reason, msg, e.Frame)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ProtocolError reports that the body ended with an unterminated line.
// It is only returned when strict termination is enabled; otherwise the
// residual is logged and dropped.
type ProtocolError struct {
	Dialect  string
	Residual string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("stream: %s: unterminated residual at end of body (%d bytes): %q",
		e.Dialect, len(e.Residual), e.Residual)
}

// IsRemote reports whether err is a DecodeError raised because the remote
// service itself reported an error. Any other failure means the response
// could not be understood or could not be read.
func IsRemote(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Reason == ReasonRemote
}
