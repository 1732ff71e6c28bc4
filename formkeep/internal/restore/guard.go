package restore

import (
	"sync"
	"time"
)

// Guard is the shared "restoring" flag. While it is active, restores are
// no-ops and save requests are ignored. It is released a fixed hold after
// the restore call returns, which covers events the restore itself queued.
type Guard struct {
	mu     sync.Mutex
	hold   time.Duration
	active bool
	gen    uint64
	timer  *time.Timer
}

// NewGuard creates a Guard released hold after each Leave. Default: 500ms.
func NewGuard(hold time.Duration) *Guard {
	if hold <= 0 {
		hold = 500 * time.Millisecond
	}
	return &Guard{hold: hold}
}

// Active reports whether a restore is in progress or inside its hold window.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Enter sets the flag. It returns false if the flag was already set.
func (g *Guard) Enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return false
	}
	g.active = true
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	return true
}

// Hold sets the flag and cancels any scheduled release. The flag stays set
// until Stop.
func (g *Guard) Hold() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = true
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// Leave schedules the release of the flag after the hold window.
func (g *Guard) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	gen := g.gen
	g.timer = time.AfterFunc(g.hold, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.gen == gen {
			g.active = false
			g.timer = nil
		}
	})
}

// Stop cancels a pending release and clears the flag immediately.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.active = false
}
