// Package htmldoc is an in-memory dom.Page backed by goquery. Element
// properties (value, checked, selection) are stored in the tree's
// attributes and text, events are dispatched synchronously to document
// listeners, and frame load is signalled explicitly with Frame.Load.
//
// It runs the capture/restore core without a browser: offline HTML files,
// fixtures and tests.
package htmldoc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
)

// Page is an in-memory host document with optional embedded frames.
type Page struct {
	mu       sync.Mutex
	mainHTML string
	main     *Document
	frames   map[string]*Frame
	reloads  int
	watchers map[int]func(dom.Event)
	nextW    int
}

// NewPage parses the host document markup.
func NewPage(mainHTML string) (*Page, error) {
	p := &Page{
		mainHTML: mainHTML,
		frames:   make(map[string]*Frame),
		watchers: make(map[int]func(dom.Event)),
	}
	doc, err := newDocument(p, "main", mainHTML)
	if err != nil {
		return nil, err
	}
	p.main = doc
	return p, nil
}

// MustPage is NewPage for fixtures; it panics on parse errors.
func MustPage(mainHTML string) *Page {
	p, err := NewPage(mainHTML)
	if err != nil {
		panic(err)
	}
	return p
}

// AttachFrame registers the document that the iframe element with the given
// id will expose once loaded. The frame starts unloaded.
func (p *Page) AttachFrame(elementID, frameHTML string) (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := &Frame{page: p, html: frameHTML, loaded: make(chan struct{})}
	doc, err := newDocument(p, "iframe", frameHTML)
	if err != nil {
		return nil, err
	}
	f.doc = doc
	p.frames[elementID] = f
	return f, nil
}

// MainDocument returns the concrete host document, for fixtures that drive
// user edits.
func (p *Page) MainDocument() *Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.main
}

// FrameDocument returns the concrete document of an attached frame.
func (p *Page) FrameDocument(elementID string) *Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.frames[elementID]; ok {
		return f.doc
	}
	return nil
}

// AttachedFrame returns the frame registered under elementID.
func (p *Page) AttachedFrame(elementID string) *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[elementID]
}

// Reloads returns how many times Reload was called.
func (p *Page) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

// Main implements dom.Page.
func (p *Page) Main() dom.Document {
	return p.MainDocument()
}

// Frame implements dom.Page. The frame exists when the host document holds
// an iframe with that id.
func (p *Page) Frame(_ context.Context, elementID string) (dom.Frame, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	found := false
	p.main.doc.Find("iframe").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if id, _ := s.Attr("id"); id == elementID {
			found = true
		}
		return !found
	})
	if !found {
		return nil, false, nil
	}

	f, ok := p.frames[elementID]
	if !ok {
		// An iframe nobody attached content to never finishes loading.
		f = &Frame{page: p, loaded: make(chan struct{})}
		p.frames[elementID] = f
	}
	return f, true, nil
}

// Reload re-parses the original markup of the host and every frame. Live
// state and listeners are discarded and frames return to the unloaded state.
func (p *Page) Reload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.reparse(); err != nil {
		return err
	}
	p.reloads++
	return nil
}

// Watch implements dom.Page.
func (p *Page) Watch(fn func(dom.Event)) func() {
	p.mu.Lock()
	id := p.nextW
	p.nextW++
	p.watchers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}

// UserReload simulates the user reloading the host page: beforeunload
// fires on the old host document, the page is re-parsed as Reload does and
// watchers see the new document load. It does not count in Reloads.
// Frames come back unloaded; call Load on them to finish the navigation.
func (p *Page) UserReload() error {
	old := p.MainDocument()
	old.emit(dom.Event{Doc: old.label, Type: dom.EventUnload})

	p.mu.Lock()
	err := p.reparse()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.notify(dom.Event{Doc: "main", Type: dom.EventLoad})
	return nil
}

// UserReloadFrame simulates a navigation inside the iframe with the given
// element id. The frame document is re-parsed and comes back unloaded.
func (p *Page) UserReloadFrame(elementID string) error {
	p.mu.Lock()
	f, ok := p.frames[elementID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("htmldoc: no frame #%s", elementID)
	}
	if f.doc != nil {
		f.doc.emit(dom.Event{Doc: f.doc.label, Type: dom.EventUnload})
	}

	p.mu.Lock()
	nf, err := p.refresh(f)
	if err == nil {
		p.frames[elementID] = nf
	}
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("htmldoc: reload frame %s: %w", elementID, err)
	}
	p.notify(dom.Event{Doc: "iframe", Type: dom.EventLoad, Target: dom.Target{Tag: "iframe", ID: elementID}})
	return nil
}

// reparse runs with p.mu held.
func (p *Page) reparse() error {
	doc, err := newDocument(p, "main", p.mainHTML)
	if err != nil {
		return fmt.Errorf("htmldoc: reload main: %w", err)
	}
	p.main = doc
	for id, f := range p.frames {
		nf, err := p.refresh(f)
		if err != nil {
			return fmt.Errorf("htmldoc: reload frame %s: %w", id, err)
		}
		p.frames[id] = nf
	}
	return nil
}

func (p *Page) refresh(f *Frame) (*Frame, error) {
	nf := &Frame{page: p, html: f.html, loaded: make(chan struct{}), crossOrigin: f.crossOrigin}
	if f.doc != nil {
		fd, err := newDocument(p, "iframe", f.html)
		if err != nil {
			return nil, err
		}
		nf.doc = fd
	}
	return nf, nil
}

func (p *Page) notify(ev dom.Event) {
	p.mu.Lock()
	fns := make([]func(dom.Event), 0, len(p.watchers))
	for i := 0; i < p.nextW; i++ {
		if fn, ok := p.watchers[i]; ok {
			fns = append(fns, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Frame is an embedded frame whose load signal is driven by the caller.
type Frame struct {
	page        *Page
	html        string
	doc         *Document
	loaded      chan struct{}
	once        sync.Once
	crossOrigin bool
}

// Load fires the frame's load signal. Safe to call more than once.
func (f *Frame) Load() {
	f.once.Do(func() { close(f.loaded) })
}

// SetCrossOrigin marks the frame as inaccessible from the host document.
func (f *Frame) SetCrossOrigin() {
	f.page.mu.Lock()
	f.crossOrigin = true
	f.page.mu.Unlock()
}

// WaitLoad implements dom.Frame.
func (f *Frame) WaitLoad(ctx context.Context) error {
	select {
	case <-f.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Document implements dom.Frame.
func (f *Frame) Document(context.Context) (dom.Document, error) {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()

	if f.crossOrigin {
		return nil, dom.ErrCrossOrigin
	}
	select {
	case <-f.loaded:
	default:
		return nil, dom.ErrFrameNotLoaded
	}
	if f.doc == nil {
		return nil, dom.ErrFrameNotLoaded
	}
	return f.doc, nil
}

func normalise(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
