// Package sse implements the turn event sink over Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/sur-labs/reflex/internal/port/stream"
)

// frame is the wire shape of one SSE data line.
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// Sink writes turn events to an HTTP response as Server-Sent Events. The
// response writer must implement http.Flusher.
type Sink struct {
	w       http.ResponseWriter
	flusher http.Flusher

	closeOnce sync.Once
	closeErr  error
}

// NewSink prepares the response for event streaming and returns the sink.
// Returns an error when the writer cannot flush.
func NewSink(w http.ResponseWriter) (*Sink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Sink{w: w, flusher: flusher}, nil
}

// Write sends one event and flushes it to the client immediately.
func (s *Sink) Write(ev stream.Event) error {
	f := frame{Type: string(ev.Type)}
	switch ev.Type {
	case stream.EventText:
		f.Payload = ev.Text
	case stream.EventFinish:
		f.Payload = ev.Finish
	case stream.EventError:
		f.Payload = errorPayload{Error: ev.Error}
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Close terminates the stream with the [DONE] sentinel. Safe to call more
// than once.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
			s.closeErr = fmt.Errorf("write done sentinel: %w", err)
			return
		}
		s.flusher.Flush()
	})
	return s.closeErr
}
