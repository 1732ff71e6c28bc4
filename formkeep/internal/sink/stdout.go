package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
)

// Stdout writes JSON lines to an io.Writer (default os.Stdout).
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Notify(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(Envelope{Type: "notification", Data: n})
}

func (s *Stdout) Saved(_ context.Context, ack Ack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(Envelope{Type: "saved", Data: ack})
}

func (s *Stdout) Close() error { return nil }

// Envelope tags an event with its kind on serialised transports.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
