package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event is one client-side session transition.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"event_type"`
	UserID    string    `json:"user_id,omitempty"`
	// Email is the address the caller typed, recorded for failed logins
	// where no user id is known.
	Email string `json:"email,omitempty"`
	// TokenFingerprint identifies the token involved without revealing it.
	TokenFingerprint string `json:"token_fp,omitempty"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	// Metadata carries the rejecting operation and HTTP status of a failure.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink forwards events into a buffered channel, blocking until there
// is room or ctx ends.
type ChannelSink struct {
	ch chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.ch <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// JSONWriterSink writes newline-delimited JSON.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.w == nil {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(line)
}
