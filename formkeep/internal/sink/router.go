package sink

import (
	"context"
	"log/slog"
	"sync"
)

// Router fans out events to all configured sinks. One sink error does not
// block the others; errors are logged and the first encountered is returned.
type Router struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Add registers another sink.
func (r *Router) Add(s Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()
}

func (r *Router) snapshot() []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Sink(nil), r.sinks...)
}

func (r *Router) Notify(ctx context.Context, n Notification) error {
	var firstErr error
	for _, s := range r.snapshot() {
		if err := s.Notify(ctx, n); err != nil {
			r.logger.Warn("sink: notify failed", "key", n.Key, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Saved(ctx context.Context, ack Ack) error {
	var firstErr error
	for _, s := range r.snapshot() {
		if err := s.Saved(ctx, ack); err != nil {
			r.logger.Warn("sink: save ack failed", "page", ack.PageID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.snapshot() {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
