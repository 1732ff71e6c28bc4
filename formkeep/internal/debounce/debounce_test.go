package debounce

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flag bool

func (f *flag) Active() bool { return bool(*f) }

type saves struct {
	n     int
	final []bool
	err   error
}

func (s *saves) save(_ context.Context, final bool) error {
	s.n++
	s.final = append(s.final, final)
	return s.err
}

// drain runs the owner loop until no save is pending or timeout passes.
func drain(t *testing.T, c *Controller, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for c.Pending() {
		select {
		case <-c.C():
			c.Fire(context.Background())
		case <-deadline:
			t.Fatal("pending save never fired")
		}
	}
}

func TestCoalescing(t *testing.T) {
	s := &saves{}
	c := New(Config{Window: 30 * time.Millisecond}, nil, s.save, nil)

	for i := 0; i < 10; i++ {
		if !c.Request() {
			t.Fatalf("Request %d ignored", i)
		}
		time.Sleep(2 * time.Millisecond)
	}
	drain(t, c, time.Second)

	if s.n != 1 {
		t.Errorf("saves: got %d, want 1", s.n)
	}
	if s.final[0] {
		t.Error("debounced save marked final")
	}
}

func TestWindowRestarts(t *testing.T) {
	s := &saves{}
	c := New(Config{Window: 40 * time.Millisecond}, nil, s.save, nil)

	c.Request()
	time.Sleep(25 * time.Millisecond)
	c.Request()

	select {
	case <-c.C():
		t.Fatal("timer fired before the restarted window elapsed")
	case <-time.After(25 * time.Millisecond):
	}
	drain(t, c, time.Second)
	if s.n != 1 {
		t.Errorf("saves: got %d, want 1", s.n)
	}
}

func TestRequestIgnoredWhileRestoring(t *testing.T) {
	s := &saves{}
	g := flag(true)
	c := New(Config{Window: 10 * time.Millisecond}, &g, s.save, nil)

	if c.Request() {
		t.Fatal("Request accepted while restoring")
	}
	if c.Pending() || c.C() != nil {
		t.Fatal("save pending after ignored request")
	}

	g = false
	if !c.Request() {
		t.Fatal("Request ignored after restore ended")
	}
	drain(t, c, time.Second)
	if s.n != 1 {
		t.Errorf("saves: got %d, want 1", s.n)
	}
}

func TestFireDuringRestoreDrops(t *testing.T) {
	s := &saves{}
	g := flag(false)
	c := New(Config{Window: 10 * time.Millisecond}, &g, s.save, nil)

	c.Request()
	g = true
	drain(t, c, time.Second)
	if s.n != 0 {
		t.Errorf("saves: got %d, want 0", s.n)
	}
}

func TestFailureClearsTimer(t *testing.T) {
	s := &saves{err: errors.New("quota exceeded")}
	c := New(Config{Window: 10 * time.Millisecond}, nil, s.save, nil)

	c.Request()
	<-c.C()
	if err := c.Fire(context.Background()); err == nil {
		t.Fatal("Fire: expected error")
	}
	if c.Pending() {
		t.Fatal("timer still pending after failed save")
	}

	s.err = nil
	c.Request()
	drain(t, c, time.Second)
	if s.n != 2 {
		t.Errorf("saves: got %d, want 2", s.n)
	}
}

func TestFlush(t *testing.T) {
	s := &saves{}
	g := flag(false)
	c := New(Config{Window: time.Hour}, &g, s.save, nil)

	c.Request()
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if s.n != 1 || !s.final[0] {
		t.Fatalf("Flush: saves %d final %v", s.n, s.final)
	}
	if c.Pending() {
		t.Error("Flush left a pending save")
	}

	g = true
	c.Flush(context.Background())
	if s.n != 1 {
		t.Errorf("Flush during restore saved: %d", s.n)
	}
}

func TestStop(t *testing.T) {
	s := &saves{}
	c := New(Config{Window: 10 * time.Millisecond}, nil, s.save, nil)
	c.Request()
	c.Stop()
	time.Sleep(30 * time.Millisecond)
	if c.Pending() || s.n != 0 {
		t.Errorf("Stop: pending %v saves %d", c.Pending(), s.n)
	}
}
