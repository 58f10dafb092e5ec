package httpwire

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
)

// EventStream writes Server-Sent Events to a response. Writes are
// serialized, each event is flushed as a whole, and nothing is written once
// ctx is done.
type EventStream struct {
	mu  sync.Mutex
	w   http.ResponseWriter
	rc  *http.ResponseController
	ctx context.Context
}

// StartEventStream commits a 200 text/event-stream response. Headers set on
// w before the call are sent along. It fails when the writer cannot flush.
func StartEventStream(ctx context.Context, w http.ResponseWriter) (*EventStream, error) {
	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", EventStreamMediaType.String())
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("start event stream: %w", err)
	}
	return &EventStream{w: w, rc: rc, ctx: ctx}, nil
}

// WriteEvent writes one event. An empty event name or id is omitted; the
// payload is split into one data line per input line.
func (s *EventStream) WriteEvent(event, id string, payload []byte) error {
	var buf bytes.Buffer
	if event != "" {
		fmt.Fprintf(&buf, "event: %s\n", event)
	}
	if id != "" {
		fmt.Fprintf(&buf, "id: %s\n", id)
	}
	for _, line := range bytes.Split(payload, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimSuffix(line, []byte("\r")))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	if err := s.ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check after acquiring the lock to minimize races with cancellation
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush SSE event: %w", err)
	}
	return nil
}

// Done is closed when the stream's context ends.
func (s *EventStream) Done() <-chan struct{} {
	return s.ctx.Done()
}
