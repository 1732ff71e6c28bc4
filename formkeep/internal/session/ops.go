package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/formkeep/formstate"
)

// Status is a point-in-time view of a session, safe to read from any
// goroutine.
type Status struct {
	PageID    string `json:"page_id"`
	State     string `json:"state"`
	Frame     string `json:"frame"`
	Restoring bool   `json:"restoring"`
	Saves     int    `json:"saves"`
	Restores  int    `json:"restores"`
	Reloads   int    `json:"reloads"`
	// Navigations counts documents the page replaced on its own.
	Navigations int       `json:"navigations"`
	LastSave    time.Time `json:"last_save,omitzero"`
	LastHash    string    `json:"last_hash,omitempty"`
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	st.Restoring = s.guard.Active()
	return st
}

// Capture returns the live state of both documents without persisting it.
func (s *Session) Capture(ctx context.Context) (*formstate.Snapshot, error) {
	var snap *formstate.Snapshot
	err := s.do(ctx, func(ctx context.Context) error {
		snap = s.snapshot(ctx)
		return nil
	})
	return snap, err
}

// Saved returns the persisted snapshot, or store.ErrNoSnapshot.
func (s *Session) Saved(ctx context.Context) (*formstate.Snapshot, error) {
	return s.cfg.Slot.Load(ctx)
}

// SaveNow cancels any pending debounced save and persists immediately.
func (s *Session) SaveNow(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if s.guard.Active() {
			return ErrRestoring
		}
		s.ctrl.Stop()
		return s.commit(ctx, false)
	})
}

// Restore applies the persisted snapshot. It reports false when another
// restore holds the guard.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	var applied bool
	err := s.do(ctx, func(ctx context.Context) error {
		snap, err := s.cfg.Slot.Load(ctx)
		if err != nil {
			return err
		}
		applied = s.apply(ctx, snap)
		return nil
	})
	return applied, err
}

// Prompts shown by Reset.
const (
	ResetPrompt = "Reset the chart?\n\n" +
		"This permanently deletes all patient information, measurements, notes and markings, " +
		"and the saved chart data.\n\nThis cannot be undone. Are you sure?"
	ResetConfirmPrompt = "Click OK to confirm deletion of all chart data."
	ResetDoneNotice    = "Chart data has been reset. Reloading page..."
)

// Reset asks for two confirmations, then deletes the saved snapshot, blanks
// every field in both documents and reloads the page after the reload
// delay. p overrides the configured Prompter. A refusal returns ErrDeclined
// and changes nothing.
func (s *Session) Reset(ctx context.Context, p Prompter) error {
	if p == nil {
		p = s.cfg.Prompt
	}
	if p == nil {
		return ErrNoPrompter
	}
	return s.do(ctx, func(ctx context.Context) error { return s.reset(ctx, p) })
}

// resetClicked runs a reset started from the page's reset element.
func (s *Session) resetClicked(ctx context.Context) {
	if s.cfg.Prompt == nil {
		s.log.Warn("session: reset element clicked, no prompter configured")
		return
	}
	s.log.Info("session: reset requested from the page")
	err := s.reset(ctx, s.cfg.Prompt)
	switch {
	case err == nil, errors.Is(err, ErrDeclined):
	default:
		s.log.Error("session: reset failed", "error", err)
	}
}

// reset runs on the loop.
func (s *Session) reset(ctx context.Context, p Prompter) error {
	for _, msg := range []string{ResetPrompt, ResetConfirmPrompt} {
		ok, err := p.Confirm(ctx, msg)
		if err != nil {
			return fmt.Errorf("session: reset confirm: %w", err)
		}
		if !ok {
			s.log.Info("session: reset declined")
			return ErrDeclined
		}
	}

	// Held until the reload so the clear events cannot save.
	s.guard.Hold()
	s.ctrl.Stop()
	if err := s.cfg.Slot.Clear(ctx); err != nil {
		s.guard.Stop()
		return err
	}
	s.restorer.Clear(ctx, s.mainDoc())
	if doc := s.frameDoc(ctx); doc != nil {
		s.restorer.Clear(ctx, doc)
	}
	s.log.Info("session: reset, reloading", "delay", s.cfg.Timing.ReloadDelay)

	if err := p.Notify(ctx, ResetDoneNotice); err != nil {
		s.log.Warn("session: reset notice failed", "error", err)
	}
	s.after(s.cfg.Timing.ReloadDelay, s.reload)
	return nil
}
