package session

import (
	"sync"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
)

// eventQueue is an unbounded FIFO. Listeners can fire from the loop itself
// (restore and clear dispatch events synchronously), so push never blocks.
type eventQueue struct {
	mu     sync.Mutex
	items  []dom.Event
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev dom.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) ready() <-chan struct{} { return q.signal }

func (q *eventQueue) drain() []dom.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
