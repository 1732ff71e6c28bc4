// Package sink is the notification port of formkeep. Restores and resets
// emit one Notification per synthesized DOM event, and every committed save
// emits an Ack. Downstream consumers subscribe through a Sink.
package sink

import (
	"context"
)

// Origin says which operation produced a notification.
type Origin string

const (
	OriginRestore Origin = "restore"
	OriginReset   Origin = "reset"
)

// Notification reports that formkeep wrote an element and dispatched the
// given event on it.
type Notification struct {
	PageID string `json:"page_id"`
	Doc    string `json:"doc"`
	Key    string `json:"key"`
	Tag    string `json:"tag"`
	Event  string `json:"event"`
	Origin Origin `json:"origin"`
}

// Ack acknowledges a committed save.
type Ack struct {
	PageID    string `json:"page_id"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
	Entries   int    `json:"entries"`
	Frame     bool   `json:"frame"`
	Final     bool   `json:"final"` // teardown flush
}

// Sink is the output interface. Implementations deliver events to
// different backends (stdout, webhook, websocket, in-process callback).
type Sink interface {
	Notify(ctx context.Context, n Notification) error
	Saved(ctx context.Context, ack Ack) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
func (Nop) Saved(context.Context, Ack) error           { return nil }
func (Nop) Close() error                               { return nil }
