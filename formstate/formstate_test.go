package formstate

import (
	"encoding/json"
	"strings"
	"testing"
)

// Payload as written by the browser extension that first used this slot.
const legacyPayload = `{
	"timestamp": 1708700000000,
	"mainPage": {
		"inputs": {"bleeding-1": true, "patient-name": "Doe", "age": 42},
		"divStates": {"tooth-18": {"display": "none", "classList": ["tooth", "missing"]}},
		"selectValues": {"quadrant": "2"},
		"textareaValues": {"notes": "ok"}
	},
	"iframePage": null
}`

func TestUnmarshalLegacyPayload(t *testing.T) {
	s, err := UnmarshalSnapshot([]byte(legacyPayload))
	if err != nil {
		t.Fatal(err)
	}
	if s.Timestamp != 1708700000000 {
		t.Errorf("Timestamp: got %d", s.Timestamp)
	}
	if s.HasFrame() {
		t.Error("HasFrame: got true for null iframePage")
	}

	bleeding := s.MainPage.Inputs["bleeding-1"]
	if !bleeding.IsToggle() || !bleeding.Checked() {
		t.Errorf("bleeding-1: got %+v, want checked toggle", bleeding)
	}
	if got := s.MainPage.Inputs["patient-name"].String(); got != "Doe" {
		t.Errorf("patient-name: got %q", got)
	}
	if got := s.MainPage.Inputs["age"].String(); got != "42" {
		t.Errorf("age: got %q, want numeric literal kept as text", got)
	}
	div := s.MainPage.DivStates["tooth-18"]
	if div.Display != "none" || len(div.ClassList) != 2 || div.ClassList[1] != "missing" {
		t.Errorf("tooth-18: got %+v", div)
	}
	if s.MainPage.TextareaValues["notes"] != "ok" {
		t.Errorf("notes: got %q", s.MainPage.TextareaValues["notes"])
	}
}

func TestSnapshotMarshalRoundtrip(t *testing.T) {
	main := NewDocumentState()
	main.Inputs["bleeding-1"] = Bool(true)
	main.Inputs["depth-1"] = Text("3")
	main.SelectValues["quadrant"] = "1"
	main.TextareaValues["notes"] = "ok"
	main.DivStates["panel"] = ContainerState{Display: "block", ClassList: []string{}}

	frame := NewDocumentState()
	frame.Inputs["furcation-36"] = Bool(false)

	s := &Snapshot{Timestamp: 1708700000000, MainPage: main, IframePage: &frame}

	data, err := MarshalSnapshot(s)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}

	if !got.MainPage.Equal(main) {
		t.Errorf("MainPage: got %+v, want %+v", got.MainPage, main)
	}
	if got.IframePage == nil || !got.IframePage.Equal(frame) {
		t.Errorf("IframePage: got %+v", got.IframePage)
	}
	if cl := got.MainPage.DivStates["panel"].ClassList; cl == nil {
		t.Error("empty classList decoded as nil; restore would skip it")
	}
}

func TestEmptyStateMarshalsObjects(t *testing.T) {
	data, err := json.Marshal(NewDocumentState())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "null") {
		t.Errorf("empty state: got %s, want {} for every category", data)
	}
}

func TestUnmarshalSnapshot_Rejects(t *testing.T) {
	for _, in := range []string{"null", "{", `"str"`} {
		if _, err := UnmarshalSnapshot([]byte(in)); err == nil {
			t.Errorf("UnmarshalSnapshot(%s): want error", in)
		}
	}
}

func TestInputValueConversions(t *testing.T) {
	if Text("").Checked() {
		t.Error(`Text("").Checked(): want false`)
	}
	if !Text("x").Checked() {
		t.Error(`Text("x").Checked(): want true`)
	}
	if Bool(false).String() != "false" {
		t.Errorf("Bool(false).String(): got %q", Bool(false).String())
	}
	if Bool(true) == Text("true") {
		t.Error("toggle and text values must differ")
	}
}

func TestHashIgnoresTimestamp(t *testing.T) {
	a := &Snapshot{Timestamp: 1, MainPage: NewDocumentState()}
	a.MainPage.TextareaValues["notes"] = "ok"
	b := &Snapshot{Timestamp: 2, MainPage: NewDocumentState()}
	b.MainPage.TextareaValues["notes"] = "ok"

	if Hash(a) != Hash(b) {
		t.Error("Hash: timestamps must not affect the digest")
	}
	b.MainPage.TextareaValues["notes"] = "changed"
	if Hash(a) == Hash(b) {
		t.Error("Hash: different content must differ")
	}
}

func TestEqual_NilAndEmpty(t *testing.T) {
	var zero DocumentState
	if !zero.Equal(NewDocumentState()) {
		t.Error("nil maps and empty maps must compare equal")
	}
}
