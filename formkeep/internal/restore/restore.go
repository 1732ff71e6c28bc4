// Package restore applies a captured formstate.DocumentState back onto a
// document, re-synthesizing the events a live edit would produce so page
// logic bound to those events re-evaluates.
package restore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
	"github.com/hazyhaar/formkeep/formkeep/internal/sink"
	"github.com/hazyhaar/formkeep/formstate"
)

// Notifier receives one notification per synthesized event.
type Notifier interface {
	Notify(ctx context.Context, n sink.Notification) error
}

// Restorer writes snapshots into documents.
type Restorer struct {
	PageID   string
	Guard    *Guard
	Notifier Notifier
	Logger   *slog.Logger
}

func (r *Restorer) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Restore applies snap to the host document and, when both are present, the
// frame document. It returns false without touching anything when snap is
// nil or another restore holds the guard.
func (r *Restorer) Restore(ctx context.Context, snap *formstate.Snapshot, main, frame dom.Document) bool {
	if snap == nil || !r.Guard.Enter() {
		return false
	}
	defer r.Guard.Leave()

	r.Document(ctx, main, snap.MainPage)
	if frame != nil && snap.IframePage != nil {
		r.Document(ctx, frame, *snap.IframePage)
	}
	r.logger().Info("restore: applied",
		"page", r.PageID, "main", snap.MainPage.Len(), "frame", snap.HasFrame() && frame != nil)
	return true
}

// Document applies one DocumentState without consulting the guard. Keys
// that resolve to no element are skipped.
func (r *Restorer) Document(ctx context.Context, doc dom.Document, st formstate.DocumentState) {
	for _, key := range sortedKeys(st.Inputs) {
		v := st.Inputs[key]
		r.apply(ctx, doc, dom.TagInput, key, func(el dom.Element) (dom.EventType, error) {
			if dom.IsToggle(el.Type()) {
				return dom.EventChange, el.SetChecked(v.Checked())
			}
			return dom.EventInput, el.SetValue(v.String())
		})
	}

	for _, key := range sortedKeys(st.SelectValues) {
		v := st.SelectValues[key]
		r.apply(ctx, doc, dom.TagSelect, key, func(el dom.Element) (dom.EventType, error) {
			return dom.EventChange, el.SetValue(v)
		})
	}

	for _, key := range sortedKeys(st.TextareaValues) {
		v := st.TextareaValues[key]
		r.apply(ctx, doc, dom.TagTextarea, key, func(el dom.Element) (dom.EventType, error) {
			return dom.EventInput, el.SetValue(v)
		})
	}

	// Containers resolve by id only and emit no events.
	for _, key := range sortedKeys(st.DivStates) {
		cs := st.DivStates[key]
		err := safely(func() error {
			el, err := doc.ByID(ctx, key)
			if err != nil || el == nil {
				return err
			}
			if cs.Display != "" {
				if err := el.SetInlineDisplay(cs.Display); err != nil {
					return err
				}
			}
			if cs.ClassList != nil {
				return el.SetClasses(cs.ClassList)
			}
			return nil
		})
		if err != nil {
			r.logger().Debug("restore: container skipped", "doc", doc.Label(), "key", key, "error", err)
		}
	}
}

// Clear blanks every input, select and textarea: toggles unchecked, text
// emptied, selects back to their first option. Inputs fire input and change,
// selects change, textareas input.
func (r *Restorer) Clear(ctx context.Context, doc dom.Document) {
	each := func(tag dom.Tag, fn func(dom.Element) ([]dom.EventType, error)) {
		els, err := doc.Query(ctx, tag)
		if err != nil {
			r.logger().Warn("restore: clear query failed", "doc", doc.Label(), "tag", tag, "error", err)
			return
		}
		for _, el := range els {
			err := safely(func() error {
				events, err := fn(el)
				if err != nil {
					return err
				}
				for _, ev := range events {
					if err := el.Dispatch(ev); err != nil {
						return err
					}
					r.notify(ctx, doc, tag, dom.Key(el), ev, sink.OriginReset)
				}
				return nil
			})
			if err != nil {
				r.logger().Debug("restore: clear skipped element", "doc", doc.Label(), "tag", tag, "error", err)
			}
		}
	}

	both := []dom.EventType{dom.EventInput, dom.EventChange}
	each(dom.TagInput, func(el dom.Element) ([]dom.EventType, error) {
		if dom.IsToggle(el.Type()) {
			return both, el.SetChecked(false)
		}
		return both, el.SetValue("")
	})
	each(dom.TagSelect, func(el dom.Element) ([]dom.EventType, error) {
		return []dom.EventType{dom.EventChange}, el.SelectFirst()
	})
	each(dom.TagTextarea, func(el dom.Element) ([]dom.EventType, error) {
		return []dom.EventType{dom.EventInput}, el.SetValue("")
	})
}

// apply resolves key within tag, runs write, then dispatches and reports the
// resulting event.
func (r *Restorer) apply(ctx context.Context, doc dom.Document, tag dom.Tag, key string, write func(dom.Element) (dom.EventType, error)) {
	err := safely(func() error {
		el, err := resolve(ctx, doc, tag, key)
		if err != nil || el == nil {
			return err
		}
		ev, err := write(el)
		if err != nil {
			return err
		}
		if err := el.Dispatch(ev); err != nil {
			return err
		}
		r.notify(ctx, doc, tag, key, ev, sink.OriginRestore)
		return nil
	})
	if err != nil {
		r.logger().Debug("restore: element skipped", "doc", doc.Label(), "tag", tag, "key", key, "error", err)
	}
}

func (r *Restorer) notify(ctx context.Context, doc dom.Document, tag dom.Tag, key string, ev dom.EventType, origin sink.Origin) {
	if r.Notifier == nil {
		return
	}
	n := sink.Notification{
		PageID: r.PageID,
		Doc:    doc.Label(),
		Key:    key,
		Tag:    string(tag),
		Event:  string(ev),
		Origin: origin,
	}
	if err := r.Notifier.Notify(ctx, n); err != nil {
		r.logger().Debug("restore: notify failed", "key", key, "error", err)
	}
}

// resolve finds the element for key: by id when the id belongs to an element
// of the same category, otherwise by name within the category.
func resolve(ctx context.Context, doc dom.Document, tag dom.Tag, key string) (dom.Element, error) {
	el, err := doc.ByID(ctx, key)
	if err != nil {
		return nil, err
	}
	if el != nil && el.Tag() == tag {
		return el, nil
	}
	return doc.ByName(ctx, tag, key)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("restore: element panic: %v", r)
		}
	}()
	return fn()
}
