package browser

import (
	"strings"
	"testing"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
)

func TestParseStealth(t *testing.T) {
	cases := map[string]StealthLevel{
		"":         LevelHeadless,
		"headless": LevelHeadless,
		"headful":  LevelHeadful,
		"plain":    LevelPlain,
	}
	for in, want := range cases {
		got, err := ParseStealth(in)
		if err != nil || got != want {
			t.Errorf("ParseStealth(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseStealth("invisible"); err == nil {
		t.Error("ParseStealth(invisible): expected error")
	}
}

func TestShouldBlock(t *testing.T) {
	blocked := map[string]bool{"images": true, "fonts": true, "stylesheets": true, "script": true}
	cases := map[string]bool{
		"Image":      true,
		"Font":       true,
		"Stylesheet": true,
		"Media":      false,
		"Document":   false,
		"Script":     false,
		"XHR":        false,
	}
	for typ, want := range cases {
		if got := shouldBlock(blocked, typ); got != want {
			t.Errorf("shouldBlock(%q) = %v, want %v", typ, got, want)
		}
	}
}

func TestManagerDefaults(t *testing.T) {
	m := NewManager(Config{})
	if m.cfg.MemoryLimit != 1<<30 || m.cfg.XvfbDisplay != ":99" || m.cfg.Logger == nil {
		t.Errorf("defaults: %+v", m.cfg)
	}
	if m.Browser() != nil {
		t.Error("Browser before Start should be nil")
	}
	m.Close()
	if _, err := m.Start(t.Context()); err == nil {
		t.Error("Start after Close: expected error")
	}
}

func TestBridgeDeliverFiltersByDocument(t *testing.T) {
	b := &bridge{fns: make(map[int]listener)}
	var mainN, frameN int
	b.fns[0] = listener{doc: "main", fn: func(ev dom.Event) { mainN++ }}
	b.fns[1] = listener{doc: "iframe", fn: func(ev dom.Event) { frameN++ }}
	b.nextID = 2

	b.deliver(dom.Event{Doc: "iframe", Type: dom.EventInput})
	b.deliver(dom.Event{Doc: "iframe", Type: dom.EventChange})
	b.deliver(dom.Event{Doc: "main", Type: dom.EventClick})
	if mainN != 1 || frameN != 2 {
		t.Errorf("deliveries: main=%d iframe=%d", mainN, frameN)
	}
}

func TestTabWatchStops(t *testing.T) {
	tab := &Tab{watchers: make(map[int]func(dom.Event))}
	var got []dom.Event
	stop := tab.Watch(func(ev dom.Event) { got = append(got, ev) })

	tab.notify(dom.Event{Doc: "main", Type: dom.EventLoad})
	stop()
	tab.notify(dom.Event{Doc: "iframe", Type: dom.EventLoad})
	if len(got) != 1 || got[0].Doc != "main" {
		t.Errorf("watched events: %+v", got)
	}
}

func TestBridgeScriptReportsUnload(t *testing.T) {
	for _, want := range []string{`addEventListener("beforeunload"`, `type: "beforeunload"`, "resetID"} {
		if !strings.Contains(bridgeJS, want) {
			t.Errorf("bridge script lacks %s", want)
		}
	}
}

func TestDecodeElementMeta(t *testing.T) {
	m, err := decodeMeta(`{"tag":"input","id":"pd-18-1","name":"","type":"text"}`)
	if err != nil || m.Tag != "input" || m.ID != "pd-18-1" || m.Type != "text" {
		t.Fatalf("decodeMeta: %+v %v", m, err)
	}
	m, err = decodeMeta(`{"tag":`)
	if err == nil {
		t.Fatal("truncated identity accepted")
	}
	if m != (elementMeta{}) {
		t.Errorf("partial identity kept: %+v", m)
	}
}
