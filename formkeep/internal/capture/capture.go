// Package capture walks a document's form-bearing elements and produces a
// flat formstate.DocumentState keyed by element identifier.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
	"github.com/hazyhaar/formkeep/formstate"
)

// Scanner captures documents. The zero value is usable.
type Scanner struct {
	Logger *slog.Logger
	// Now stamps snapshots. Default: time.Now.
	Now func() time.Time
}

func (s *Scanner) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Snapshot captures the host document and, when non-nil, the frame document.
// A nil frame yields a snapshot with no iframePage.
func (s *Scanner) Snapshot(ctx context.Context, main, frame dom.Document) *formstate.Snapshot {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	snap := &formstate.Snapshot{
		Timestamp: now().UnixMilli(),
		MainPage:  s.Document(ctx, main),
	}
	if frame != nil {
		fs := s.Document(ctx, frame)
		snap.IframePage = &fs
	}
	return snap
}

// Document captures one document. It never fails: a query or element that
// errors is logged and skipped, and elements without an identifier are
// ignored. When two elements share an identifier the later one wins.
func (s *Scanner) Document(ctx context.Context, doc dom.Document) formstate.DocumentState {
	st := formstate.NewDocumentState()
	log := s.logger()

	each := func(tag dom.Tag, fn func(key string, el dom.Element) error) {
		els, err := doc.Query(ctx, tag)
		if err != nil {
			log.Warn("capture: query failed", "doc", doc.Label(), "tag", tag, "error", err)
			return
		}
		for _, el := range els {
			key := dom.Key(el)
			if key == "" {
				continue
			}
			if err := safely(func() error { return fn(key, el) }); err != nil {
				log.Debug("capture: element skipped", "doc", doc.Label(), "tag", tag, "key", key, "error", err)
			}
		}
	}

	each(dom.TagInput, func(key string, el dom.Element) error {
		if dom.IsToggle(el.Type()) {
			checked, err := el.Checked()
			if err != nil {
				return err
			}
			st.Inputs[key] = formstate.Bool(checked)
			return nil
		}
		v, err := el.Value()
		if err != nil {
			return err
		}
		st.Inputs[key] = formstate.Text(v)
		return nil
	})

	each(dom.TagSelect, func(key string, el dom.Element) error {
		v, err := el.Value()
		if err != nil {
			return err
		}
		st.SelectValues[key] = v
		return nil
	})

	each(dom.TagTextarea, func(key string, el dom.Element) error {
		v, err := el.Value()
		if err != nil {
			return err
		}
		st.TextareaValues[key] = v
		return nil
	})

	// Containers are tracked by id only, and only while they carry an
	// explicit inline display.
	each(dom.TagDiv, func(_ string, el dom.Element) error {
		id := el.ID()
		if id == "" {
			return nil
		}
		display, err := el.InlineDisplay()
		if err != nil || display == "" {
			return err
		}
		classes, err := el.Classes()
		if err != nil {
			return err
		}
		if classes == nil {
			classes = []string{}
		}
		st.DivStates[id] = formstate.ContainerState{Display: display, ClassList: classes}
		return nil
	})

	return st
}

// safely runs fn, turning a panic from a misbehaving element backend into an
// error so one element cannot abort the pass.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capture: element panic: %v", r)
		}
	}()
	return fn()
}
