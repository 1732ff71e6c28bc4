// Package debounce coalesces save requests into a single capture+persist
// once a quiet window elapses. A Controller is owned by one goroutine: the
// owner selects on C() and calls Fire when it delivers.
package debounce

import (
	"context"
	"log/slog"
	"time"
)

// Guard reports whether a restore is in progress.
type Guard interface {
	Active() bool
}

// SaveFunc captures and persists. final is true for the teardown flush.
type SaveFunc func(ctx context.Context, final bool) error

// Config controls the debounce window.
type Config struct {
	// Window is the quiet period before a save commits. Default: 500ms.
	Window time.Duration
}

func (c *Config) defaults() {
	if c.Window <= 0 {
		c.Window = 500 * time.Millisecond
	}
}

// Controller is the debounced persistence controller.
type Controller struct {
	cfg     Config
	guard   Guard
	save    SaveFunc
	logger  *slog.Logger
	timer   *time.Timer
	timerCh <-chan time.Time

	// coalesced counts requests folded into the pending save.
	coalesced int
}

// New creates a Controller. guard may be nil.
func New(cfg Config, guard Guard, save SaveFunc, logger *slog.Logger) *Controller {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{cfg: cfg, guard: guard, save: save, logger: logger}
}

func (c *Controller) restoring() bool {
	return c.guard != nil && c.guard.Active()
}

// Request (re)starts the window. It is ignored while a restore holds the
// guard and reports whether a save is now pending.
func (c *Controller) Request() bool {
	if c.restoring() {
		return false
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.NewTimer(c.cfg.Window)
	c.timerCh = c.timer.C
	c.coalesced++
	return true
}

// C fires when the window expires. It is nil while nothing is pending, so a
// select on it blocks.
func (c *Controller) C() <-chan time.Time {
	return c.timerCh
}

// Pending reports whether a save is scheduled.
func (c *Controller) Pending() bool {
	return c.timerCh != nil
}

// Fire commits the pending save. The timer is cleared whatever the outcome
// so later requests schedule afresh. Errors are logged and returned.
func (c *Controller) Fire(ctx context.Context) error {
	n := c.coalesced
	c.clear()
	if c.restoring() {
		c.logger.Debug("debounce: save dropped during restore", "requests", n)
		return nil
	}
	if err := c.save(ctx, false); err != nil {
		c.logger.Warn("debounce: save failed", "requests", n, "error", err)
		return err
	}
	c.logger.Debug("debounce: saved", "requests", n)
	return nil
}

// Flush cancels any pending window and saves synchronously, unless a
// restore is in progress.
func (c *Controller) Flush(ctx context.Context) error {
	c.clear()
	if c.restoring() {
		c.logger.Info("debounce: final save skipped during restore")
		return nil
	}
	if err := c.save(ctx, true); err != nil {
		c.logger.Warn("debounce: final save failed", "error", err)
		return err
	}
	return nil
}

// Stop discards any pending save.
func (c *Controller) Stop() {
	c.clear()
}

func (c *Controller) clear() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerCh = nil
	c.coalesced = 0
}
