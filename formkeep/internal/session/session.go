// Package session coordinates capture, persistence and restore for one page
// made of a host document and an optional same-origin frame.
//
// All mutable state lives on a single loop goroutine started by Run. DOM
// listeners and timers never touch that state directly; they post events
// or closures to the loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/formkeep/formkeep/internal/capture"
	"github.com/hazyhaar/formkeep/formkeep/internal/clickrule"
	"github.com/hazyhaar/formkeep/formkeep/internal/config"
	"github.com/hazyhaar/formkeep/formkeep/internal/debounce"
	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
	"github.com/hazyhaar/formkeep/formkeep/internal/restore"
	"github.com/hazyhaar/formkeep/formkeep/internal/sink"
	"github.com/hazyhaar/formkeep/formkeep/internal/store"
	"github.com/hazyhaar/formkeep/formstate"
)

var (
	// ErrDeclined is returned by Reset when a confirmation was refused.
	ErrDeclined = errors.New("session: reset declined")

	// ErrClosed is returned by operations on a session whose loop exited.
	ErrClosed = errors.New("session: closed")

	// ErrRestoring is returned by SaveNow while a restore holds the guard.
	ErrRestoring = errors.New("session: restore in progress")

	// ErrNoPrompter is returned by Reset when neither the caller nor the
	// config supplies a Prompter.
	ErrNoPrompter = errors.New("session: reset: no prompter")
)

// Config configures a Session.
type Config struct {
	PageID  string
	FrameID string // default: config.DefaultFrameID
	Page    dom.Page
	Slot    *store.Slot
	Sink    sink.Sink           // default: sink.Nop
	Rule    *clickrule.Rule     // default: clickrule.Default
	Timing  config.TimingConfig // zero fields take defaults
	Prompt  Prompter            // used by Reset when the caller passes none
	Logger  *slog.Logger
	Now     func() time.Time

	// ResetElementID is the id of a host-document element whose click
	// starts a reset answered by Prompt. Empty disables it.
	ResetElementID string
}

// Session is the dual-document coordinator.
type Session struct {
	cfg      Config
	log      *slog.Logger
	guard    *restore.Guard
	scanner  *capture.Scanner
	restorer *restore.Restorer
	ctrl     *debounce.Controller

	events *eventQueue
	calls  chan func(context.Context)
	done   chan struct{}
	once   sync.Once

	// Loop-owned.
	state    State
	epoch    uint64
	main     dom.Document
	frame    *frameRef
	unlisten []func()
	armed    map[string]bool
	stopWait context.CancelFunc

	mu     sync.RWMutex
	status Status
}

// New builds a session. Nothing runs until Run.
func New(cfg Config) (*Session, error) {
	if cfg.Page == nil {
		return nil, fmt.Errorf("session: %s: nil page", cfg.PageID)
	}
	if cfg.Slot == nil {
		return nil, fmt.Errorf("session: %s: nil slot", cfg.PageID)
	}
	if cfg.FrameID == "" {
		cfg.FrameID = config.DefaultFrameID
	}
	if cfg.Sink == nil {
		cfg.Sink = sink.Nop{}
	}
	if cfg.Rule == nil {
		cfg.Rule = clickrule.MustCompile(clickrule.Default)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Timing = cfg.Timing.WithDefaults()

	log := cfg.Logger.With("page", cfg.PageID)
	s := &Session{
		cfg:     cfg,
		log:     log,
		guard:   restore.NewGuard(cfg.Timing.RestoreHold),
		scanner: &capture.Scanner{Logger: log, Now: cfg.Now},
		events:  newEventQueue(),
		calls:   make(chan func(context.Context), 64),
		done:    make(chan struct{}),
		armed:   make(map[string]bool),
	}
	s.restorer = &restore.Restorer{PageID: cfg.PageID, Guard: s.guard, Notifier: cfg.Sink, Logger: log}
	s.ctrl = debounce.New(debounce.Config{Window: cfg.Timing.Debounce}, s.guard, s.commit, log)
	s.status = Status{PageID: cfg.PageID, State: StateInit.String(), Frame: FrameUnresolved.String()}
	return s, nil
}

// PageID returns the configured page id.
func (s *Session) PageID() string { return s.cfg.PageID }

// Run drives the session until ctx is cancelled, then performs the final
// save. It returns ErrClosed if called twice.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.once.Do(func() { started = true })
	if !started {
		return ErrClosed
	}
	defer close(s.done)

	unwatch := s.cfg.Page.Watch(s.events.push)
	defer unwatch()

	s.start(ctx)
	for {
		select {
		case <-ctx.Done():
			s.teardown(context.WithoutCancel(ctx))
			return nil
		case <-s.events.ready():
			epoch := s.epoch
			for _, ev := range s.events.drain() {
				s.handle(ctx, ev)
				if s.epoch != epoch {
					// The rest of the batch came from replaced documents.
					break
				}
			}
		case fn := <-s.calls:
			fn(ctx)
		case <-s.ctrl.C():
			s.ctrl.Fire(ctx)
		}
	}
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// post queues fn on the loop. It reports false once the loop has exited.
func (s *Session) post(fn func(context.Context)) bool {
	select {
	case s.calls <- fn:
		return true
	case <-s.done:
		return false
	}
}

// after runs fn on the loop once d elapses, unless the page was reloaded
// in between.
func (s *Session) after(d time.Duration, fn func(context.Context)) {
	epoch := s.epoch
	time.AfterFunc(d, func() {
		s.post(func(ctx context.Context) {
			if s.epoch != epoch {
				return
			}
			fn(ctx)
		})
	})
}

// do runs fn on the loop and waits for its result.
func (s *Session) do(ctx context.Context, fn func(context.Context) error) error {
	res := make(chan error, 1)
	select {
	case s.calls <- func(loopCtx context.Context) { res <- fn(loopCtx) }:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handle routes a DOM event to the controller.
func (s *Session) handle(ctx context.Context, ev dom.Event) {
	t := ev.Target
	switch ev.Type {
	case dom.EventUnload:
		if err := s.ctrl.Flush(ctx); err != nil {
			s.log.Warn("session: unload save failed", "doc", ev.Doc, "error", err)
		}
	case dom.EventLoad:
		if ev.Doc != "main" && t.ID != s.cfg.FrameID {
			return
		}
		s.log.Info("session: document replaced by the page", "doc", ev.Doc)
		s.restart(ctx, nil)
		s.update(func(st *Status) { st.Navigations++ })
	case dom.EventInput:
		if t.IsField(dom.TagInput, dom.TagTextarea) {
			s.request(ev)
		}
	case dom.EventChange:
		if t.IsField(dom.TagInput, dom.TagSelect, dom.TagTextarea) {
			s.request(ev)
		}
	case dom.EventClick:
		if id := s.cfg.ResetElementID; id != "" && ev.Doc == "main" && t.ID == id {
			s.resetClicked(ctx)
			return
		}
		ok, err := s.cfg.Rule.Match(t)
		if err != nil {
			s.log.Warn("session: click rule failed", "error", err)
			return
		}
		if ok {
			s.after(s.cfg.Timing.ClickDelay, func(context.Context) { s.request(ev) })
		}
	}
}

func (s *Session) request(ev dom.Event) {
	if !s.ctrl.Request() {
		s.log.Debug("session: save request ignored while restoring", "doc", ev.Doc, "key", ev.Target.Key())
		return
	}
	s.log.Debug("session: save requested", "doc", ev.Doc, "type", ev.Type, "key", ev.Target.Key())
}

// snapshot captures both documents.
func (s *Session) snapshot(ctx context.Context) *formstate.Snapshot {
	return s.scanner.Snapshot(ctx, s.mainDoc(), s.frameDoc(ctx))
}

// commit is the controller's save function.
func (s *Session) commit(ctx context.Context, final bool) error {
	snap := s.snapshot(ctx)
	if err := s.cfg.Slot.Save(ctx, snap); err != nil {
		return err
	}
	hash := formstate.Hash(snap)
	entries := snap.MainPage.Len()
	if snap.IframePage != nil {
		entries += snap.IframePage.Len()
	}
	s.update(func(st *Status) {
		st.Saves++
		st.LastSave = time.UnixMilli(snap.Timestamp)
		st.LastHash = hash
	})
	s.log.Info("session: saved", "entries", entries, "frame", snap.HasFrame(), "final", final)

	ack := sink.Ack{
		PageID:    s.cfg.PageID,
		Timestamp: snap.Timestamp,
		Hash:      hash,
		Entries:   entries,
		Frame:     snap.HasFrame(),
		Final:     final,
	}
	if err := s.cfg.Sink.Saved(ctx, ack); err != nil {
		s.log.Warn("session: save ack failed", "error", err)
	}
	return nil
}

func (s *Session) teardown(ctx context.Context) {
	if err := s.ctrl.Flush(ctx); err != nil {
		s.log.Warn("session: final save failed", "error", err)
	}
	s.disarm()
	s.guard.Stop()
	s.log.Info("session: stopped")
}

func (s *Session) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}
