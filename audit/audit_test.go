package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/formkeep/dbopen"
	"github.com/hazyhaar/formkeep/kit"
)

func newLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := New(context.Background(), dbopen.OpenMemory(t), 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestMiddlewareRecordsCalls(t *testing.T) {
	l := newLogger(t)
	ctx := kit.WithPageID(kit.WithTransport(context.Background(), "mcp"), "chart")
	ctx = kit.WithRequestID(ctx, "req-1")

	ok := func(context.Context, any) (any, error) { return "done", nil }
	fail := func(context.Context, any) (any, error) { return nil, errors.New("declined") }

	if _, err := l.Middleware("save")(ok)(ctx, map[string]string{"page_id": "chart"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := l.Middleware("reset")(fail)(ctx, nil); err == nil {
		t.Fatal("error swallowed")
	}
	l.Close()

	entries, err := l.Query(context.Background(), Filter{PageID: "chart"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	reset, save := entries[0], entries[1]
	if reset.Operation != "reset" || reset.Status != "error" || reset.ErrorMessage != "declined" {
		t.Fatalf("reset entry: %+v", reset)
	}
	if reset.Parameters != "{}" {
		t.Fatalf("nil params: got %q", reset.Parameters)
	}
	if save.Operation != "save" || save.Status != "success" || save.Transport != "mcp" || save.RequestID != "req-1" {
		t.Fatalf("save entry: %+v", save)
	}
	if save.Parameters != `{"page_id":"chart"}` {
		t.Fatalf("params: got %q", save.Parameters)
	}
}

func TestQueryFilters(t *testing.T) {
	l := newLogger(t)
	for i, op := range []string{"save", "restore", "save"} {
		l.Log(&Entry{Operation: op, PageID: "p", Timestamp: time.UnixMilli(int64(1000 + i))})
	}
	l.Log(&Entry{Operation: "save", PageID: "other"})
	l.Close()

	ctx := context.Background()
	saves, err := l.Query(ctx, Filter{PageID: "p", Operation: "save"})
	if err != nil {
		t.Fatal(err)
	}
	if len(saves) != 2 || saves[0].Timestamp.UnixMilli() != 1002 {
		t.Fatalf("saves: %+v", saves)
	}
	one, _ := l.Query(ctx, Filter{Limit: 1})
	if len(one) != 1 || one[0].PageID != "other" {
		t.Fatalf("limit 1: %+v", one)
	}
}
