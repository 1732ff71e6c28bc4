package htmldoc

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
)

// Document is one in-memory element tree. All access goes through the owning
// Page's mutex; listeners run without it held.
type Document struct {
	page      *Page
	label     string
	doc       *goquery.Document
	listeners map[int]func(dom.Event)
	nextID    int
	// unselected marks selects whose value was set to a missing option.
	unselected map[*html.Node]bool
}

func newDocument(p *Page, label, markup string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse %s: %w", label, err)
	}
	return &Document{
		page:       p,
		label:      label,
		doc:        doc,
		listeners:  make(map[int]func(dom.Event)),
		unselected: make(map[*html.Node]bool),
	}, nil
}

// Label implements dom.Document.
func (d *Document) Label() string { return d.label }

// Query implements dom.Document.
func (d *Document) Query(_ context.Context, tag dom.Tag) ([]dom.Element, error) {
	d.page.mu.Lock()
	defer d.page.mu.Unlock()

	var out []dom.Element
	d.doc.Find(string(tag)).Each(func(_ int, s *goquery.Selection) {
		out = append(out, d.wrap(s))
	})
	return out, nil
}

// ByID implements dom.Document.
func (d *Document) ByID(_ context.Context, id string) (dom.Element, error) {
	d.page.mu.Lock()
	defer d.page.mu.Unlock()

	if s := d.findByID(id); s != nil {
		return d.wrap(s), nil
	}
	return nil, nil
}

// ByName implements dom.Document.
func (d *Document) ByName(_ context.Context, tag dom.Tag, name string) (dom.Element, error) {
	d.page.mu.Lock()
	defer d.page.mu.Unlock()

	s := d.doc.Find(string(tag)).FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, ok := s.Attr("name")
		return ok && v == name
	}).First()
	if s.Length() == 0 {
		return nil, nil
	}
	return d.wrap(s), nil
}

// Listen implements dom.Document.
func (d *Document) Listen(_ context.Context, fn func(dom.Event)) (func(), error) {
	d.page.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.page.mu.Unlock()

	return func() {
		d.page.mu.Lock()
		delete(d.listeners, id)
		d.page.mu.Unlock()
	}, nil
}

// HTML renders the current tree.
func (d *Document) HTML() string {
	d.page.mu.Lock()
	defer d.page.mu.Unlock()
	out, err := goquery.OuterHtml(d.doc.Selection)
	if err != nil {
		return ""
	}
	return out
}

// Element returns the element with the given id, or nil.
func (d *Document) Element(id string) *Element {
	d.page.mu.Lock()
	defer d.page.mu.Unlock()
	if s := d.findByID(id); s != nil {
		return d.wrap(s)
	}
	return nil
}

// UserInput simulates typing into a text input or textarea: the value is
// replaced and an input event fires.
func (d *Document) UserInput(id, text string) error {
	el, err := d.mustElement(id)
	if err != nil {
		return err
	}
	if err := el.SetValue(text); err != nil {
		return err
	}
	return el.Dispatch(dom.EventInput)
}

// UserCheck simulates toggling a checkbox or radio.
func (d *Document) UserCheck(id string, checked bool) error {
	el, err := d.mustElement(id)
	if err != nil {
		return err
	}
	if err := el.SetChecked(checked); err != nil {
		return err
	}
	return el.Dispatch(dom.EventChange)
}

// UserSelect simulates choosing an option.
func (d *Document) UserSelect(id, value string) error {
	el, err := d.mustElement(id)
	if err != nil {
		return err
	}
	if err := el.SetValue(value); err != nil {
		return err
	}
	return el.Dispatch(dom.EventChange)
}

// UserClick simulates a click on the element.
func (d *Document) UserClick(id string) error {
	el, err := d.mustElement(id)
	if err != nil {
		return err
	}
	return el.Dispatch(dom.EventClick)
}

func (d *Document) mustElement(id string) (*Element, error) {
	el := d.Element(id)
	if el == nil {
		return nil, fmt.Errorf("htmldoc: %s: no element #%s", d.label, id)
	}
	return el, nil
}

func (d *Document) findByID(id string) *goquery.Selection {
	s := d.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	}).First()
	if s.Length() == 0 {
		return nil
	}
	return s
}

func (d *Document) wrap(s *goquery.Selection) *Element {
	return &Element{doc: d, sel: s}
}

func (d *Document) emit(ev dom.Event) {
	d.page.mu.Lock()
	fns := make([]func(dom.Event), 0, len(d.listeners))
	for i := 0; i < d.nextID; i++ {
		if fn, ok := d.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	d.page.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
