package sink

import "context"

// NotifyFunc is called for each notification.
type NotifyFunc func(ctx context.Context, n Notification) error

// SavedFunc is called for each save acknowledgment.
type SavedFunc func(ctx context.Context, ack Ack) error

// Callback delivers events via Go function calls, with no serialisation.
type Callback struct {
	onNotify NotifyFunc
	onSaved  SavedFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onNotify NotifyFunc, onSaved SavedFunc) *Callback {
	return &Callback{onNotify: onNotify, onSaved: onSaved}
}

func (c *Callback) Notify(ctx context.Context, n Notification) error {
	if c.onNotify != nil {
		return c.onNotify(ctx, n)
	}
	return nil
}

func (c *Callback) Saved(ctx context.Context, ack Ack) error {
	if c.onSaved != nil {
		return c.onSaved(ctx, ack)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
