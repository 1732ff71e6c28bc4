package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
)

// Tab is an open page. It implements dom.Page.
type Tab struct {
	Page    *rod.Page
	PageURL string
	PageID  string
	Stealth StealthLevel
	// ResetButton is the id of the reset button put into the host document
	// when it has none. Empty adds nothing.
	ResetButton string

	manager *Manager
	bridge  *bridge
	router  *rod.HijackRouter
	unwatch context.CancelFunc

	mu         sync.Mutex
	watchers   map[int]func(dom.Event)
	nextW      int
	navigating bool
	selfLoads  int
}

// OpenTab creates a tab, navigates to pageURL and waits for the load event.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, pageID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	log := mgr.cfg.Logger

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth >= LevelHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{
		Page:     page,
		PageURL:  pageURL,
		PageID:   pageID,
		Stealth:  mgr.cfg.Stealth,
		manager:  mgr,
		watchers: make(map[int]func(dom.Event)),
	}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		t.router = blockResources(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	t.bridge = newBridge(ctx, page, log.With("page", pageID))
	t.watchNavigation(ctx)
	return t, nil
}

// Main implements dom.Page.
func (t *Tab) Main() dom.Document {
	return &Document{page: t.Page, label: "main", bridge: t.bridge, resetID: t.ResetButton}
}

// Frame implements dom.Page. It looks for an iframe element with the given
// id in the host document without waiting for one to appear.
func (t *Tab) Frame(ctx context.Context, elementID string) (dom.Frame, bool, error) {
	els, err := t.Page.Context(ctx).ElementsByJS(rod.Eval(
		`id => { const e = document.getElementById(id); return e && e.tagName === "IFRAME" ? [e] : [] }`, elementID))
	if err != nil {
		return nil, false, fmt.Errorf("browser: find frame %s: %w", elementID, err)
	}
	if len(els) == 0 {
		return nil, false, nil
	}
	return &Frame{el: els[0], bridge: t.bridge}, true, nil
}

// Reload implements dom.Page.
func (t *Tab) Reload(ctx context.Context) error {
	p := t.Page.Context(ctx)
	t.mu.Lock()
	t.selfLoads++
	t.mu.Unlock()
	if err := p.Reload(); err != nil {
		t.mu.Lock()
		t.selfLoads--
		t.mu.Unlock()
		return fmt.Errorf("browser: reload: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("browser: reload wait: %w", err)
	}
	t.bridge.bind()
	return nil
}

// Watch implements dom.Page.
func (t *Tab) Watch(fn func(dom.Event)) func() {
	t.mu.Lock()
	id := t.nextW
	t.nextW++
	t.watchers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.watchers, id)
		t.mu.Unlock()
	}
}

// watchNavigation follows navigations the page makes on its own. A
// top-level navigation is reported once its load event fires; an iframe
// navigation is reported when it commits, since the session waits for the
// frame load itself.
func (t *Tab) watchNavigation(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.unwatch = cancel
	p := t.Page.Context(ctx)
	p.EnableDomain(&proto.PageEnable{})

	wait := p.EachEvent(
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil {
				return
			}
			if e.Frame.ParentID == "" {
				t.mu.Lock()
				t.navigating = true
				t.mu.Unlock()
				return
			}
			t.mu.Lock()
			navigating := t.navigating
			t.mu.Unlock()
			if navigating {
				return
			}
			id := t.frameOwnerID(ctx, e.Frame.ID)
			if id == "" {
				return
			}
			t.notify(dom.Event{Doc: "iframe", Type: dom.EventLoad, Target: dom.Target{Tag: "iframe", ID: id}})
		},
		func(*proto.PageLoadEventFired) {
			t.mu.Lock()
			navigating := t.navigating
			t.navigating = false
			self := t.selfLoads > 0
			if self {
				t.selfLoads--
			}
			t.mu.Unlock()
			if !navigating || self {
				return
			}
			t.bridge.bind()
			t.notify(dom.Event{Doc: "main", Type: dom.EventLoad})
		},
	)
	go wait()
}

// frameOwnerID returns the id attribute of the iframe element hosting the
// given frame, or "" when it cannot be found.
func (t *Tab) frameOwnerID(ctx context.Context, frameID proto.PageFrameID) string {
	p := t.Page.Context(ctx)
	owner, err := proto.DOMGetFrameOwner{FrameID: frameID}.Call(p)
	if err != nil {
		return ""
	}
	node, err := proto.DOMDescribeNode{BackendNodeID: owner.BackendNodeID}.Call(p)
	if err != nil || node.Node == nil {
		return ""
	}
	attrs := node.Node.Attributes
	for i := 0; i+1 < len(attrs); i += 2 {
		if attrs[i] == "id" {
			return attrs[i+1]
		}
	}
	return ""
}

func (t *Tab) notify(ev dom.Event) {
	t.mu.Lock()
	fns := make([]func(dom.Event), 0, len(t.watchers))
	for i := 0; i < t.nextW; i++ {
		if fn, ok := t.watchers[i]; ok {
			fns = append(fns, fn)
		}
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.unwatch != nil {
		t.unwatch()
	}
	if t.bridge != nil {
		t.bridge.close()
	}
	if t.router != nil {
		t.router.Stop()
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

// Frame is an iframe element of a tab.
type Frame struct {
	el     *rod.Element
	bridge *bridge
}

const frameStateJS = `() => {
	try {
		const d = this.contentDocument;
		if (!d) return "cross";
		return d.readyState === "complete" && d.location.href !== "about:blank" ? "ok" : "loading";
	} catch (e) {
		return "cross";
	}
}`

func (f *Frame) state(ctx context.Context) (string, error) {
	res, err := f.el.Context(ctx).Eval(frameStateJS)
	if err != nil {
		return "", fmt.Errorf("browser: frame state: %w", err)
	}
	return res.Value.Str(), nil
}

// WaitLoad implements dom.Frame. A cross-origin frame counts as loaded;
// Document then reports it as unreachable.
func (f *Frame) WaitLoad(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		st, err := f.state(ctx)
		if err != nil {
			return err
		}
		if st != "loading" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Document implements dom.Frame.
func (f *Frame) Document(ctx context.Context) (dom.Document, error) {
	st, err := f.state(ctx)
	if err != nil {
		return nil, err
	}
	switch st {
	case "cross":
		return nil, dom.ErrCrossOrigin
	case "loading":
		return nil, dom.ErrFrameNotLoaded
	}
	fp, err := f.el.Context(ctx).Frame()
	if err != nil {
		return nil, fmt.Errorf("browser: frame page: %w", err)
	}
	return &Document{page: fp, label: "iframe", bridge: f.bridge}, nil
}
