// Package store persists snapshots into a named key-value slot. A Slot owns
// the JSON encoding and the monotonic timestamp; Backends only move bytes.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hazyhaar/formkeep/formstate"
)

// ErrNoSnapshot is returned when the slot is empty.
var ErrNoSnapshot = errors.New("store: no snapshot")

// Backend is a raw key-value slot. Get returns ErrNoSnapshot for a missing
// key; Delete of a missing key is not an error.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Slot is one persisted snapshot.
type Slot struct {
	backend Backend
	key     string
	now     func() time.Time

	mu   sync.Mutex
	last int64
}

// SlotOption configures a Slot.
type SlotOption func(*Slot)

// WithClock overrides time.Now for stamping.
func WithClock(now func() time.Time) SlotOption {
	return func(s *Slot) { s.now = now }
}

// NewSlot binds key on backend.
func NewSlot(b Backend, key string, opts ...SlotOption) *Slot {
	s := &Slot{backend: b, key: key, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key returns the slot name.
func (s *Slot) Key() string { return s.key }

// Load reads and decodes the slot. A missing slot yields ErrNoSnapshot;
// malformed content yields a wrapped decode error.
func (s *Slot) Load(ctx context.Context) (*formstate.Snapshot, error) {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return nil, err
		}
		return nil, fmt.Errorf("store: load %s: %w", s.key, err)
	}
	snap, err := formstate.UnmarshalSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", s.key, err)
	}
	s.mu.Lock()
	if snap.Timestamp > s.last {
		s.last = snap.Timestamp
	}
	s.mu.Unlock()
	return snap, nil
}

// Save stamps snap with a timestamp strictly greater than any this slot has
// written or read, then replaces the slot content.
func (s *Slot) Save(ctx context.Context, snap *formstate.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("store: save %s: nil snapshot", s.key)
	}
	s.mu.Lock()
	ts := s.now().UnixMilli()
	if ts <= s.last {
		ts = s.last + 1
	}
	s.mu.Unlock()

	stamped := *snap
	stamped.Timestamp = ts
	data, err := formstate.MarshalSnapshot(&stamped)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", s.key, err)
	}
	if err := s.backend.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("store: save %s: %w", s.key, err)
	}

	s.mu.Lock()
	if ts > s.last {
		s.last = ts
	}
	s.mu.Unlock()
	snap.Timestamp = ts
	return nil
}

// Clear deletes the slot.
func (s *Slot) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("store: clear %s: %w", s.key, err)
	}
	return nil
}

// Memory is an in-process Backend.
type Memory struct {
	mu      sync.Mutex
	data    map[string][]byte
	failPut error
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// FailWith makes every later Put return err. nil restores normal writes.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.failPut = err
	m.mu.Unlock()
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
