package htmldoc

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
)

// Element is a handle on one node of a Document.
type Element struct {
	doc *Document
	sel *goquery.Selection
}

func (e *Element) lock()   { e.doc.page.mu.Lock() }
func (e *Element) unlock() { e.doc.page.mu.Unlock() }

// Tag implements dom.Element.
func (e *Element) Tag() dom.Tag {
	e.lock()
	defer e.unlock()
	return dom.Tag(goquery.NodeName(e.sel))
}

// ID implements dom.Element.
func (e *Element) ID() string {
	e.lock()
	defer e.unlock()
	v, _ := e.sel.Attr("id")
	return v
}

// Name implements dom.Element.
func (e *Element) Name() string {
	e.lock()
	defer e.unlock()
	v, _ := e.sel.Attr("name")
	return v
}

// Type implements dom.Element.
func (e *Element) Type() string {
	e.lock()
	defer e.unlock()
	return e.inputType()
}

func (e *Element) inputType() string {
	if goquery.NodeName(e.sel) != string(dom.TagInput) {
		return ""
	}
	t, ok := e.sel.Attr("type")
	if !ok || normalise(t) == "" {
		return "text"
	}
	return normalise(t)
}

// Checked implements dom.Element.
func (e *Element) Checked() (bool, error) {
	e.lock()
	defer e.unlock()
	_, ok := e.sel.Attr("checked")
	return ok, nil
}

// SetChecked implements dom.Element. Checking a radio unchecks the other
// radios of its group, as a browser does.
func (e *Element) SetChecked(checked bool) error {
	e.lock()
	defer e.unlock()

	if !checked {
		e.sel.RemoveAttr("checked")
		return nil
	}
	if e.inputType() == "radio" {
		if name, ok := e.sel.Attr("name"); ok && name != "" {
			e.doc.doc.Find(`input`).Each(func(_ int, s *goquery.Selection) {
				t, _ := s.Attr("type")
				n, _ := s.Attr("name")
				if normalise(t) == "radio" && n == name {
					s.RemoveAttr("checked")
				}
			})
		}
	}
	e.sel.SetAttr("checked", "")
	return nil
}

// Value implements dom.Element.
func (e *Element) Value() (string, error) {
	e.lock()
	defer e.unlock()

	switch dom.Tag(goquery.NodeName(e.sel)) {
	case dom.TagTextarea:
		return e.sel.Text(), nil
	case dom.TagSelect:
		return e.selectValue(), nil
	}
	v, _ := e.sel.Attr("value")
	return v, nil
}

// SetValue implements dom.Element. Setting a select to a value no option
// carries leaves it with no selection, reading back as "".
func (e *Element) SetValue(v string) error {
	e.lock()
	defer e.unlock()

	switch dom.Tag(goquery.NodeName(e.sel)) {
	case dom.TagTextarea:
		e.sel.SetText(v)
	case dom.TagSelect:
		opts := e.sel.Find("option")
		opts.RemoveAttr("selected")
		match := opts.FilterFunction(func(_ int, o *goquery.Selection) bool {
			return optionValue(o) == v
		}).First()
		if match.Length() == 0 {
			e.doc.unselected[e.sel.Get(0)] = true
			return nil
		}
		delete(e.doc.unselected, e.sel.Get(0))
		match.SetAttr("selected", "")
	default:
		e.sel.SetAttr("value", v)
	}
	return nil
}

// SelectFirst implements dom.Element.
func (e *Element) SelectFirst() error {
	e.lock()
	defer e.unlock()

	opts := e.sel.Find("option")
	opts.RemoveAttr("selected")
	delete(e.doc.unselected, e.sel.Get(0))
	if opts.Length() > 0 {
		opts.First().SetAttr("selected", "")
	}
	return nil
}

func (e *Element) selectValue() string {
	if e.doc.unselected[e.sel.Get(0)] {
		return ""
	}
	opts := e.sel.Find("option")
	selected := opts.FilterFunction(func(_ int, o *goquery.Selection) bool {
		_, ok := o.Attr("selected")
		return ok
	})
	if selected.Length() > 0 {
		return optionValue(selected.Last())
	}
	if opts.Length() > 0 {
		return optionValue(opts.First())
	}
	return ""
}

func optionValue(o *goquery.Selection) string {
	if v, ok := o.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(o.Text())
}

// InlineDisplay implements dom.Element.
func (e *Element) InlineDisplay() (string, error) {
	e.lock()
	defer e.unlock()
	style, _ := e.sel.Attr("style")
	return styleProperty(style, "display"), nil
}

// SetInlineDisplay implements dom.Element.
func (e *Element) SetInlineDisplay(v string) error {
	e.lock()
	defer e.unlock()
	style, _ := e.sel.Attr("style")
	e.sel.SetAttr("style", setStyleProperty(style, "display", v))
	return nil
}

// Classes implements dom.Element.
func (e *Element) Classes() ([]string, error) {
	e.lock()
	defer e.unlock()
	class, _ := e.sel.Attr("class")
	out := []string{}
	seen := make(map[string]bool)
	for _, c := range strings.Fields(class) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}

// SetClasses implements dom.Element.
func (e *Element) SetClasses(classes []string) error {
	e.lock()
	defer e.unlock()
	e.sel.SetAttr("class", strings.Join(classes, " "))
	return nil
}

// Dispatch implements dom.Element. Listeners run synchronously, as with a
// browser's dispatchEvent.
func (e *Element) Dispatch(typ dom.EventType) error {
	e.lock()
	id, _ := e.sel.Attr("id")
	name, _ := e.sel.Attr("name")
	target := dom.Target{
		Tag:       dom.Tag(goquery.NodeName(e.sel)),
		ID:        id,
		Name:      name,
		Type:      e.inputType(),
		InOnclick: e.sel.Closest("div[onclick]").Length() > 0,
	}
	label := e.doc.label
	e.unlock()

	e.doc.emit(dom.Event{Doc: label, Type: typ, Target: target})
	return nil
}
