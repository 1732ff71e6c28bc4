package session

import (
	"context"
	"errors"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
	"github.com/hazyhaar/formkeep/formkeep/internal/store"
	"github.com/hazyhaar/formkeep/formstate"
)

// State is the startup state of a session.
type State int

const (
	StateInit State = iota
	StateFrameReady
	StateNoFrame
	StateArmed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateFrameReady:
		return "frame_ready"
	case StateNoFrame:
		return "no_frame"
	case StateArmed:
		return "armed"
	}
	return "unknown"
}

// FrameState is the resolution state of the embedded frame document.
type FrameState int

const (
	FrameUnresolved FrameState = iota
	FrameResolved
	FrameUnavailable
)

func (f FrameState) String() string {
	switch f {
	case FrameUnresolved:
		return "unresolved"
	case FrameResolved:
		return "resolved"
	case FrameUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// frameRef caches the frame document once it resolves.
type frameRef struct {
	frame dom.Frame // nil when the host has no frame element
	doc   dom.Document
	state FrameState
}

// start enters Init for the current epoch.
func (s *Session) start(ctx context.Context) {
	s.setState(StateInit)
	s.main = s.cfg.Page.Main()
	s.frame = &frameRef{}

	f, ok, err := s.cfg.Page.Frame(ctx, s.cfg.FrameID)
	if err != nil {
		s.log.Warn("session: frame lookup failed, continuing without frame", "frame", s.cfg.FrameID, "error", err)
	}
	if err != nil || !ok {
		s.frame.state = FrameUnavailable
		s.setFrame(FrameUnavailable)
		s.setState(StateNoFrame)
		s.ready(ctx)
		return
	}

	s.frame.frame = f
	epoch := s.epoch
	wctx, cancel := context.WithCancel(ctx)
	s.stopWait = cancel
	go func() {
		err := f.WaitLoad(wctx)
		s.post(func(ctx context.Context) {
			if s.epoch != epoch {
				return
			}
			if err != nil {
				s.log.Warn("session: frame load wait failed", "error", err)
				return
			}
			s.setState(StateFrameReady)
			s.ready(ctx)
		})
	}()
}

// ready reads the persisted snapshot, then schedules the restore and the
// arming, both timed from now.
func (s *Session) ready(ctx context.Context) {
	s.log.Info("session: ready", "state", s.state)

	snap, err := s.cfg.Slot.Load(ctx)
	switch {
	case errors.Is(err, store.ErrNoSnapshot):
		s.log.Info("session: no saved data")
	case err != nil:
		s.log.Error("session: saved data unreadable, restore skipped", "error", err)
	default:
		s.after(s.cfg.Timing.RestoreDelay, func(ctx context.Context) { s.apply(ctx, snap) })
	}
	s.after(s.cfg.Timing.ArmDelay, s.arm)
}

// apply restores snap onto the live documents.
func (s *Session) apply(ctx context.Context, snap *formstate.Snapshot) bool {
	if !s.restorer.Restore(ctx, snap, s.mainDoc(), s.frameDoc(ctx)) {
		s.log.Debug("session: restore skipped, another restore is active")
		return false
	}
	s.update(func(st *Status) { st.Restores++ })
	return true
}

// frameDoc resolves the frame document, caching success and permanent
// failure. A frame that has not loaded yet is retried on the next call.
func (s *Session) frameDoc(ctx context.Context) dom.Document {
	fr := s.frame
	if fr == nil {
		return nil
	}
	switch fr.state {
	case FrameResolved:
		return fr.doc
	case FrameUnavailable:
		return nil
	}
	if fr.frame == nil {
		return nil
	}

	doc, err := fr.frame.Document(ctx)
	switch {
	case err == nil:
		fr.doc, fr.state = doc, FrameResolved
		s.setFrame(FrameResolved)
		if s.state == StateArmed {
			s.listen(ctx, doc)
		}
		return doc
	case errors.Is(err, dom.ErrCrossOrigin):
		fr.state = FrameUnavailable
		s.setFrame(FrameUnavailable)
		s.log.Info("session: frame is cross-origin, frame state skipped")
	default:
		s.log.Debug("session: frame not resolvable yet", "error", err)
	}
	return nil
}

// arm wires both documents to the controller.
func (s *Session) arm(ctx context.Context) {
	s.listen(ctx, s.mainDoc())
	if doc := s.frameDoc(ctx); doc != nil {
		s.listen(ctx, doc)
	}
	s.setState(StateArmed)
	s.log.Info("session: armed", "frame", s.frame.state)
}

func (s *Session) listen(ctx context.Context, doc dom.Document) {
	if s.armed[doc.Label()] {
		return
	}
	cancel, err := doc.Listen(ctx, s.events.push)
	if err != nil {
		s.log.Warn("session: listen failed", "doc", doc.Label(), "error", err)
		return
	}
	s.armed[doc.Label()] = true
	s.unlisten = append(s.unlisten, cancel)
}

func (s *Session) disarm() {
	for _, fn := range s.unlisten {
		fn()
	}
	s.unlisten = nil
	s.armed = make(map[string]bool)
}

// reload reloads the page and re-enters Init.
func (s *Session) reload(ctx context.Context) {
	s.restart(ctx, func() {
		if err := s.cfg.Page.Reload(ctx); err != nil {
			s.log.Error("session: reload failed", "error", err)
		}
	})
	s.update(func(st *Status) { st.Reloads++ })
}

// restart re-enters Init on whatever documents the page now holds. Pending
// timers of the old epoch are invalidated and queued events from the old
// documents dropped. replace, if set, runs once the old epoch is closed.
func (s *Session) restart(ctx context.Context, replace func()) {
	s.disarm()
	s.ctrl.Stop()
	if s.stopWait != nil {
		s.stopWait()
		s.stopWait = nil
	}
	s.epoch++
	if replace != nil {
		replace()
	}
	s.events.drain()
	s.guard.Stop()
	s.setFrame(FrameUnresolved)
	s.start(ctx)
}

// mainDoc is the host document of the current epoch. It stays the old
// document until the restart, so an unload save still reads it.
func (s *Session) mainDoc() dom.Document {
	if s.main == nil {
		s.main = s.cfg.Page.Main()
	}
	return s.main
}

func (s *Session) setState(st State) {
	s.state = st
	s.update(func(status *Status) { status.State = st.String() })
}

func (s *Session) setFrame(fs FrameState) {
	s.update(func(status *Status) { status.Frame = fs.String() })
}
