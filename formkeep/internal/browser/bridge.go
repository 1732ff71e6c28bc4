package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
)

//go:embed bridge.js
var bridgeJS string

const bindingName = "__formkeep_event"

// bridge relays DOM events from the injected listener to Go callbacks via
// Runtime.addBinding. One bridge serves the host document and its frames.
type bridge struct {
	page   *rod.Page
	logger *slog.Logger
	cancel context.CancelFunc

	mu     sync.Mutex
	nextID int
	fns    map[int]listener
}

type listener struct {
	doc string
	fn  func(dom.Event)
}

func newBridge(ctx context.Context, page *rod.Page, logger *slog.Logger) *bridge {
	ctx, cancel := context.WithCancel(ctx)
	b := &bridge{page: page, logger: logger, cancel: cancel, fns: make(map[int]listener)}
	b.bind()

	wait := page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var ev dom.Event
		if err := json.Unmarshal([]byte(e.Payload), &ev); err != nil {
			b.logger.Warn("browser: bad bridge payload", "error", err)
			return
		}
		b.deliver(ev)
	})
	go wait()
	return b
}

// bind (re)registers the binding. It survives navigation, but registering
// again after a reload is harmless.
func (b *bridge) bind() {
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(b.page); err != nil {
		b.logger.Warn("browser: addBinding failed", "error", err)
	}
}

func (b *bridge) deliver(ev dom.Event) {
	b.mu.Lock()
	fns := make([]func(dom.Event), 0, len(b.fns))
	for i := 0; i < b.nextID; i++ {
		if l, ok := b.fns[i]; ok && l.doc == ev.Doc {
			fns = append(fns, l.fn)
		}
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// listen installs the page-side listener in the document behind p and
// registers fn for its events. A non-empty resetID adds a reset button with
// that id unless the document already has one.
func (b *bridge) listen(ctx context.Context, p *rod.Page, label, resetID string, fn func(dom.Event)) (func(), error) {
	if _, err := p.Context(ctx).Eval(bridgeJS, label, bindingName, resetID); err != nil {
		return nil, err
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.fns[id] = listener{doc: label, fn: fn}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.fns, id)
		b.mu.Unlock()
	}, nil
}

func (b *bridge) close() {
	b.cancel()
}
