package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Webhook POSTs JSON envelopes to a URL with retry and exponential backoff.
// Delivery is asynchronous: events are queued and a single worker posts
// them in order, so a slow endpoint never stalls a restore pass. When the
// queue is full the event is dropped and logged.
type Webhook struct {
	url        string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	grace      time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan Envelope
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// ErrWebhookClosed is returned for events sent after Close.
var ErrWebhookClosed = errors.New("webhook: closed")

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookBackoff sets the base retry delay. Default: 1s, doubled per attempt.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookCloseTimeout bounds how long Close waits for queued events.
// Deliveries still pending then are abandoned. Default: 5s.
func WithWebhookCloseTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.grace = d }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// WithWebhookClient replaces the HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// NewWebhook creates a Webhook sink targeting the given URL and starts its
// delivery worker.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		grace:      5 * time.Second,
		logger:     slog.Default(),
		queue:      make(chan Envelope, 256),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	go w.run()
	return w
}

func (w *Webhook) Notify(_ context.Context, n Notification) error {
	return w.enqueue(Envelope{Type: "notification", Data: n})
}

func (w *Webhook) Saved(_ context.Context, ack Ack) error {
	return w.enqueue(Envelope{Type: "saved", Data: ack})
}

// Close stops accepting events and waits for queued ones to be delivered,
// up to the close timeout.
func (w *Webhook) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	timer := time.NewTimer(w.grace)
	defer timer.Stop()
	select {
	case <-w.done:
		w.cancel()
		return nil
	case <-timer.C:
	}
	w.cancel()
	<-w.done
	return fmt.Errorf("webhook: undelivered events abandoned after %s", w.grace)
}

func (w *Webhook) enqueue(env Envelope) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWebhookClosed
	}
	select {
	case w.queue <- env:
		return nil
	default:
		return fmt.Errorf("webhook: queue full, %s dropped", env.Type)
	}
}

func (w *Webhook) run() {
	defer close(w.done)
	for env := range w.queue {
		if err := w.post(w.ctx, env); err != nil {
			w.logger.Error("webhook: delivery failed", "type", env.Type, "error", err)
		}
	}
}

func (w *Webhook) post(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * w.backoff
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			w.logger.Warn("webhook: request failed", "attempt", attempt+1, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook: status %d", resp.StatusCode)
		w.logger.Warn("webhook: bad status", "attempt", attempt+1, "status", resp.StatusCode)
	}
	return fmt.Errorf("webhook: all retries exhausted: %w", lastErr)
}
