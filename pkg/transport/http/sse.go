package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/transport"
)

type writerState int

const (
	writerIdle      writerState = iota // nothing written yet
	writerStreaming                    // at least one event written
	writerCompleted                    // terminal event or full response written
)

// sseResponseWriter implements transport.ResponseWriter over HTTP. Events
// are written as server-sent events; a full response is written as JSON.
type sseResponseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu       sync.Mutex
	state    writerState
	streamed bool

	// onCreated receives the chat ID from the first chat.created event.
	onCreated func(id string)
}

var _ transport.ResponseWriter = (*sseResponseWriter)(nil)

func newSSEResponseWriter(w http.ResponseWriter, onCreated func(id string)) *sseResponseWriter {
	return &sseResponseWriter{
		w:         w,
		rc:        http.NewResponseController(w),
		onCreated: onCreated,
	}
}

// WriteEvent sends one event as
//
//	event: {type}
//	data: {json}
//
// and flushes it. A terminal event is followed by "data: [DONE]".
func (s *sseResponseWriter) WriteEvent(_ context.Context, event api.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write event: writer is completed")
	}

	if s.state == writerIdle {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.state = writerStreaming
		s.streamed = true
	}

	if event.Type == api.EventChatCreated && event.Response != nil && s.onCreated != nil {
		s.onCreated(event.Response.ID)
		s.onCreated = nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}

	if event.IsTerminal() {
		if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
			return fmt.Errorf("writing [DONE]: %w", err)
		}
		s.state = writerCompleted
	}

	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flushing event: %w", err)
	}
	return nil
}

// WriteResponse sends a complete JSON response. It is mutually exclusive
// with WriteEvent.
func (s *sseResponseWriter) WriteResponse(_ context.Context, resp *api.ChatResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case writerStreaming:
		return errors.New("cannot write response: streaming has already started")
	case writerCompleted:
		return errors.New("cannot write response: writer is completed")
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted

	if err := json.NewEncoder(s.w).Encode(resp); err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	return nil
}

func (s *sseResponseWriter) Flush() error {
	return s.rc.Flush()
}

// hasStreamed reports whether any event was written.
func (s *sseResponseWriter) hasStreamed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamed
}

// isCompleted reports whether the writer accepts no more output.
func (s *sseResponseWriter) isCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == writerCompleted
}
