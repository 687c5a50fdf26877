package stream

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/debug"
	"github.com/rhuss/chatwire/pkg/message"
)

const (
	defaultReadSize = 4096

	// maxEmptyReads bounds consecutive (0, nil) reads before giving up,
	// matching bufio.Scanner.
	maxEmptyReads = 100
)

// Observer receives per-frame notifications. Implementations must be
// cheap; they run inline on the consumer's call to Recv.
type Observer interface {
	Frame(dialect string, kind FrameKind)
	Delta(dialect string)
	DecodeError(dialect string, reason Reason)
	Residual(dialect string)
}

type nopObserver struct{}

func (nopObserver) Frame(string, FrameKind) {}
func (nopObserver) Delta(string) {}
func (nopObserver) DecodeError(string, Reason) {}
func (nopObserver) Residual(string) {}

// Option configures a Stream.
type Option func(*Stream)

// WithStrictTermination makes an unterminated residual at end of body a
// terminal *ProtocolError instead of a logged warning.
func WithStrictTermination() Option {
	return func(s *Stream) { s.strict = true }
}

// WithLogger sets the logger for warnings and trace output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver installs a frame observer, typically for metrics.
func WithObserver(o Observer) Option {
	return func(s *Stream) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithReadSize sets the size of each read from the body.
func WithReadSize(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.readSize = n
		}
	}
}

// Stream decodes a response body into deltas on demand. A Stream has a
// single owner and is not safe for concurrent use.
type Stream struct {
	body     io.ReadCloser
	dialect  Dialect
	framer   LineFramer
	strict   bool
	logger   *slog.Logger
	observer Observer
	readSize int

	buf     []byte
	pending []Frame
	next    error // end of body or read failure, pending frames first
	err     error // terminal; io.EOF on normal end
	closed  bool
	drained bool // body closed by us after a terminal condition
}

// New returns a Stream reading body with dialect d. The Stream owns body
// and closes it on Close or after the stream terminates.
func New(body io.ReadCloser, d Dialect, opts ...Option) *Stream {
	s := &Stream{
		body:     body,
		dialect:  d,
		logger:   slog.Default(),
		observer: nopObserver{},
		readSize: defaultReadSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dialect returns the dialect the stream decodes.
func (s *Stream) Dialect() Dialect {
	return s.dialect
}

// Recv returns the next delta. It returns io.EOF once the sentinel is seen
// or the body ends. The first decode, protocol or transport error is
// terminal and is returned again by every later call. After Close, Recv
// returns ErrStreamClosed.
//
// The body is read only when no decoded frame is pending.
func (s *Stream) Recv() (api.ChatDelta, error) {
	if s.closed {
		return api.ChatDelta{}, ErrStreamClosed
	}

	for s.err == nil {
		if len(s.pending) == 0 {
			switch {
			case s.next == nil:
				s.fill()
			case errors.Is(s.next, io.EOF):
				s.terminate(s.finish())
			default:
				s.terminate(s.next)
			}
			continue
		}

		frame := s.pending[0]
		s.pending = s.pending[1:]

		delta, kind, err := s.handle(frame)
		switch {
		case err != nil:
			s.terminate(err)
		case kind == FrameSentinel:
			s.terminate(io.EOF)
		case kind == FramePayload:
			return delta, nil
		}
	}
	return api.ChatDelta{}, s.err
}

// All returns an iterator over the remaining deltas. Iteration ends after
// the first error, which is yielded with a zero delta, or at end of stream.
// Breaking out of the loop stops reading.
func (s *Stream) All() iter.Seq2[api.ChatDelta, error] {
	return func(yield func(api.ChatDelta, error) bool) {
		for {
			delta, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(api.ChatDelta{}, err)
				return
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

// Text returns an iterator over the text of the remaining deltas, for
// plain completions.
func (s *Stream) Text() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for delta, err := range s.All() {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(message.StripImages(api.TextContent(delta.Content)), nil) {
				return
			}
		}
	}
}

// Close releases the body. Calling Close more than once is safe.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	if s.drained {
		return nil
	}
	s.drained = true
	return s.body.Close()
}

// handle classifies and decodes one frame. Payload frames that do not
// decode to content yield an error.
func (s *Stream) handle(frame Frame) (api.ChatDelta, FrameKind, error) {
	name := s.dialect.Name()
	kind, payload := s.dialect.Classify(frame)
	s.observer.Frame(name, kind)
	debug.TraceTo(s.logger, "streaming", "frame",
		"dialect", name, "kind", kind.String(), "frame", debug.Truncate(frame, 500))

	if kind != FramePayload {
		return api.ChatDelta{}, kind, nil
	}

	out, err := s.dialect.Decode(payload)
	if err == nil {
		err = out.Err(name, payload)
	}
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Frame = frame
			s.observer.DecodeError(name, de.Reason)
		}
		return api.ChatDelta{}, kind, err
	}

	s.observer.Delta(name)
	return out.Delta, kind, nil
}

// fill performs one read and frames whatever arrived. End of body or a
// read failure is parked in s.next until the frames from the same read
// have been consumed.
func (s *Stream) fill() {
	if s.buf == nil {
		s.buf = make([]byte, s.readSize)
	}

	for empty := 0; ; empty++ {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			s.pending = s.framer.Push(s.buf[:n])
		}

		switch {
		case errors.Is(err, io.EOF):
			s.next = io.EOF
			return
		case err != nil:
			s.next = fmt.Errorf("stream: %s: read body: %w", s.dialect.Name(), err)
			return
		case n > 0:
			return
		case empty >= maxEmptyReads:
			s.next = fmt.Errorf("stream: %s: read body: %w", s.dialect.Name(), io.ErrNoProgress)
			return
		}
	}
}

// finish handles the end of the body and returns the terminal error. A
// non-empty residual is dropped with a warning, or is fatal in strict mode.
func (s *Stream) finish() error {
	residual, ok := s.framer.Finish()
	if !ok {
		return io.EOF
	}

	name := s.dialect.Name()
	s.observer.Residual(name)
	if s.strict {
		return &ProtocolError{Dialect: name, Residual: residual}
	}
	s.logger.Warn("discarding unterminated residual at end of stream",
		"dialect", name,
		"bytes", len(residual),
		"residual", debug.Truncate(residual, 200),
	)
	return io.EOF
}

// terminate records the terminal error, drops unread frames and releases
// the body.
func (s *Stream) terminate(err error) {
	s.err = err
	s.pending = nil
	if s.drained {
		return
	}
	s.drained = true
	if cerr := s.body.Close(); cerr != nil {
		debug.Log("streaming", "closing body", "error", cerr)
	}
}
