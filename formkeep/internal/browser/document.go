package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
)

// Document is a host or frame document inside a tab.
type Document struct {
	page   *rod.Page
	label  string
	bridge *bridge
	// resetID names the reset button injected into the document when absent.
	resetID string
}

// Label implements dom.Document.
func (d *Document) Label() string { return d.label }

func (d *Document) elements(ctx context.Context, js string, args ...any) ([]dom.Element, error) {
	els, err := d.page.Context(ctx).ElementsByJS(rod.Eval(js, args...))
	if err != nil {
		return nil, err
	}
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &Element{el: el.Context(ctx), log: d.bridge.logger})
	}
	return out, nil
}

// Query implements dom.Document.
func (d *Document) Query(ctx context.Context, tag dom.Tag) ([]dom.Element, error) {
	els, err := d.elements(ctx, `t => Array.from(document.getElementsByTagName(t))`, string(tag))
	if err != nil {
		return nil, fmt.Errorf("browser: %s: query %s: %w", d.label, tag, err)
	}
	return els, nil
}

// ByID implements dom.Document.
func (d *Document) ByID(ctx context.Context, id string) (dom.Element, error) {
	els, err := d.elements(ctx, `id => { const e = document.getElementById(id); return e ? [e] : [] }`, id)
	if err != nil {
		return nil, fmt.Errorf("browser: %s: by id %s: %w", d.label, id, err)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

// ByName implements dom.Document.
func (d *Document) ByName(ctx context.Context, tag dom.Tag, name string) (dom.Element, error) {
	els, err := d.elements(ctx,
		`(t, n) => Array.from(document.getElementsByTagName(t)).filter(e => e.getAttribute("name") === n).slice(0, 1)`,
		string(tag), name)
	if err != nil {
		return nil, fmt.Errorf("browser: %s: by name %s: %w", d.label, name, err)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

// Listen implements dom.Document.
func (d *Document) Listen(ctx context.Context, fn func(dom.Event)) (func(), error) {
	cancel, err := d.bridge.listen(ctx, d.page, d.label, d.resetID, fn)
	if err != nil {
		return nil, fmt.Errorf("browser: %s: listen: %w", d.label, err)
	}
	return cancel, nil
}
