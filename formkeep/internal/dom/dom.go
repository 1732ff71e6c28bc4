// Package dom is the document abstraction the capture, restore and session
// layers run against. Two backends implement it: a CDP-driven Chrome tab
// (internal/browser) and an in-memory HTML tree (internal/htmldoc).
package dom

import (
	"context"
	"errors"
	"strings"
)

// Tag is a lower-case element tag name.
type Tag string

const (
	TagInput    Tag = "input"
	TagSelect   Tag = "select"
	TagTextarea Tag = "textarea"
	TagDiv      Tag = "div"
	TagButton   Tag = "button"
)

// EventType is a DOM event name.
type EventType string

const (
	EventInput  EventType = "input"
	EventChange EventType = "change"
	EventClick  EventType = "click"

	// EventUnload is reported through Listen when the document's window is
	// about to unload. The document is still readable when it is delivered.
	EventUnload EventType = "beforeunload"

	// EventLoad is reported through Page.Watch once a document the page
	// replaced on its own has loaded.
	EventLoad EventType = "load"
)

var (
	// ErrFrameNotLoaded means the frame element exists but its document is
	// not reachable yet. Resolution may succeed later.
	ErrFrameNotLoaded = errors.New("dom: frame not loaded")

	// ErrCrossOrigin means the frame document can never be accessed from the
	// host document.
	ErrCrossOrigin = errors.New("dom: frame is cross-origin")
)

// Page is a host document plus an optional embedded frame.
type Page interface {
	// Main returns the host document.
	Main() Document

	// Frame returns the embedded frame with the given element id. ok is false
	// when no such element exists in the host document.
	Frame(ctx context.Context, elementID string) (frame Frame, ok bool, err error)

	// Reload reloads the host page. Documents obtained before the reload
	// describe the old document and must not be written afterwards.
	Reload(ctx context.Context) error

	// Watch reports documents the page replaced on its own, such as a user
	// reload or an iframe navigation. Each is an EventLoad whose
	// Doc is "main", or "iframe" with Target.ID set to the frame element id.
	// Reloads requested through Reload are not reported. The returned func
	// stops the watch.
	Watch(fn func(Event)) func()
}

// Frame is an embedded frame element.
type Frame interface {
	// WaitLoad blocks until the frame signals that its document is loaded.
	WaitLoad(ctx context.Context) error

	// Document returns the frame document, or ErrFrameNotLoaded /
	// ErrCrossOrigin.
	Document(ctx context.Context) (Document, error)
}

// Document is a live element tree.
type Document interface {
	// Label names the document in logs and events ("main", "iframe").
	Label() string

	// Query returns every element with the given tag, in document order.
	Query(ctx context.Context, tag Tag) ([]Element, error)

	// ByID returns the element with the given id, or nil.
	ByID(ctx context.Context, id string) (Element, error)

	// ByName returns the first element with the given tag and name
	// attribute, or nil.
	ByName(ctx context.Context, tag Tag, name string) (Element, error)

	// Listen registers fn for input, change and click events bubbling to the
	// document, and for EventUnload on a top-level document. The returned
	// func removes the listener.
	Listen(ctx context.Context, fn func(Event)) (func(), error)
}

// Element is a single element handle. Reads and writes may fail when the
// backing node was detached or the transport dropped.
type Element interface {
	Tag() Tag
	ID() string
	Name() string
	// Type is the lower-cased type attribute of an input ("" otherwise).
	Type() string

	Checked() (bool, error)
	SetChecked(bool) error
	Value() (string, error)
	SetValue(string) error
	// SelectFirst selects the first option of a select element.
	SelectFirst() error

	// InlineDisplay returns the inline style display value ("" if unset).
	InlineDisplay() (string, error)
	SetInlineDisplay(string) error
	Classes() ([]string, error)
	SetClasses([]string) error

	// Dispatch fires a bubbling event of the given type on the element.
	Dispatch(EventType) error
}

// Key returns the identifier an element is tracked under: its id, falling
// back to its name. Empty means the element is not tracked.
func Key(el Element) string {
	if id := el.ID(); id != "" {
		return id
	}
	return el.Name()
}

// IsToggle reports whether an input type is a binary choice control.
func IsToggle(inputType string) bool {
	switch strings.ToLower(inputType) {
	case "checkbox", "radio":
		return true
	}
	return false
}

// Event is a DOM event observed on a document.
type Event struct {
	Doc    string    `json:"doc"`
	Type   EventType `json:"type"`
	Target Target    `json:"target"`
}

// Target describes an event target without holding a live handle.
type Target struct {
	Tag  Tag    `json:"tag"`
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	// InOnclick is true when the target or an ancestor is a div carrying an
	// inline onclick handler.
	InOnclick bool `json:"in_onclick"`
}

// Key returns the tracked identifier of the target.
func (t Target) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Name
}

// IsField reports whether the target is a form field of the given tags.
func (t Target) IsField(tags ...Tag) bool {
	for _, tag := range tags {
		if t.Tag == tag {
			return true
		}
	}
	return false
}
