package eventfabric

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter frames Events as a plain-text line-oriented protocol: an
// "event: <type>" line, a "data: <json>" line, and a blank line —
// suitable for a browser EventSource or any line-oriented reader. Per
// spec.md §4.2 it also supports non-data keepalive comments.
type SSEWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewSSEWriter sets the SSE response headers and returns a writer. It
// panics if the underlying ResponseWriter does not support flushing,
// matching the teacher's A2A SSE writer (a server without Flusher
// support cannot stream at all, so failing loudly at setup time is
// preferable to silently buffering).
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		panic("eventfabric: streaming unsupported by ResponseWriter")
	}
	return &SSEWriter{w: w, f: flusher}
}

// Send writes one event and flushes immediately.
func (s *SSEWriter) Send(ev Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// Heartbeat writes a non-data keepalive comment line.
func (s *SSEWriter) Heartbeat() error {
	if _, err := fmt.Fprint(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
