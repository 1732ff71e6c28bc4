// Package formstate defines the persisted form snapshot model shared by the
// capture, restore and storage layers.
//
// The JSON shape is the slot format: a Snapshot written by formkeep can be
// read back by any consumer of the same storage key and vice versa.
package formstate

import (
	"maps"
	"slices"
	"time"
)

// Snapshot is the full persisted state of the host document and, when it was
// reachable at capture time, the embedded frame document.
type Snapshot struct {
	Timestamp  int64          `json:"timestamp"` // epoch milliseconds
	MainPage   DocumentState  `json:"mainPage"`
	IframePage *DocumentState `json:"iframePage"` // nil: frame unreachable at capture
}

// Time returns the snapshot timestamp as a time.Time.
func (s *Snapshot) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// HasFrame reports whether the frame document was captured.
func (s *Snapshot) HasFrame() bool {
	return s.IframePage != nil
}

// DocumentState is the capture of one document, keyed by element identifier
// (id attribute, falling back to name).
type DocumentState struct {
	Inputs         map[string]InputValue     `json:"inputs"`
	SelectValues   map[string]string         `json:"selectValues"`
	TextareaValues map[string]string         `json:"textareaValues"`
	DivStates      map[string]ContainerState `json:"divStates"`
}

// NewDocumentState returns a DocumentState with all maps allocated, so that
// empty categories serialise as {} rather than null.
func NewDocumentState() DocumentState {
	return DocumentState{
		Inputs:         make(map[string]InputValue),
		SelectValues:   make(map[string]string),
		TextareaValues: make(map[string]string),
		DivStates:      make(map[string]ContainerState),
	}
}

// Len returns the total number of captured entries across all categories.
func (d DocumentState) Len() int {
	return len(d.Inputs) + len(d.SelectValues) + len(d.TextareaValues) + len(d.DivStates)
}

// Equal reports whether two states hold the same entries. Nil and empty maps
// compare equal.
func (d DocumentState) Equal(o DocumentState) bool {
	return maps.Equal(d.Inputs, o.Inputs) &&
		maps.Equal(d.SelectValues, o.SelectValues) &&
		maps.Equal(d.TextareaValues, o.TextareaValues) &&
		maps.EqualFunc(d.DivStates, o.DivStates, ContainerState.Equal)
}

// ContainerState is the visibility and class state of a tracked container.
// An empty Display or a nil ClassList means "not recorded"; restore leaves
// the corresponding property untouched.
type ContainerState struct {
	Display   string   `json:"display"`
	ClassList []string `json:"classList"`
}

// Equal compares display and ordered class lists.
func (c ContainerState) Equal(o ContainerState) bool {
	return c.Display == o.Display && slices.Equal(c.ClassList, o.ClassList)
}
