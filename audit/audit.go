// Package audit records every operation performed through the formkeep API
// surfaces in an audit_log table. Resets are irreversible, so who asked for
// what, and when, is kept next to the slots.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/formkeep/dbopen"
	"github.com/hazyhaar/formkeep/idgen"
	"github.com/hazyhaar/formkeep/kit"
)

// Schema creates the audit table.
const Schema = `CREATE TABLE IF NOT EXISTS audit_log (
	entry_id      TEXT PRIMARY KEY,
	timestamp     INTEGER NOT NULL,
	operation     TEXT NOT NULL,
	page_id       TEXT,
	transport     TEXT,
	request_id    TEXT,
	trace_id      TEXT,
	parameters    TEXT NOT NULL DEFAULT '{}',
	error_message TEXT,
	duration_ms   INTEGER,
	status        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_page ON audit_log(page_id, timestamp DESC);`

// Entry is one audited operation.
type Entry struct {
	EntryID      string    `json:"entry_id"`
	Timestamp    time.Time `json:"timestamp"`
	Operation    string    `json:"operation"`
	PageID       string    `json:"page_id,omitempty"`
	Transport    string    `json:"transport,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	TraceID      string    `json:"trace_id,omitempty"`
	Parameters   string    `json:"parameters"`
	ErrorMessage string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	Status       string    `json:"status"` // success | error
}

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	PageID    string
	Operation string
	Limit     int // default 100
}

// Logger persists entries asynchronously through a buffered channel and a
// single writer goroutine.
type Logger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *Entry
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithIDGenerator sets the generator for entry ids.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *Logger) { l.newID = gen }
}

// WithLogger sets the logger for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) { l.logger = logger }
}

// New creates the table if needed and starts the writer.
func New(ctx context.Context, db *sql.DB, bufferSize int, opts ...Option) (*Logger, error) {
	if _, err := dbopen.Exec(ctx, db, Schema); err != nil {
		return nil, fmt.Errorf("audit: schema: %w", err)
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	l := &Logger{
		db:     db,
		newID:  idgen.Prefixed("audit_", idgen.Default),
		logger: slog.Default(),
		ch:     make(chan *Entry, bufferSize),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.run()
	return l, nil
}

// Log queues an entry. When the buffer is full it is written synchronously.
// Entries logged after Close are dropped.
func (l *Logger) Log(e *Entry) {
	l.fill(e)
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.logger.Warn("audit: logger closed, entry dropped", "operation", e.Operation)
		return
	}
	select {
	case l.ch <- e:
	default:
		l.logger.Warn("audit: buffer full, writing synchronously", "operation", e.Operation)
		if err := l.insert(context.Background(), e); err != nil {
			l.logger.Error("audit: write failed", "error", err)
		}
	}
}

// Record builds an entry from the request context and queues it.
func (l *Logger) Record(ctx context.Context, op string, params any, err error, d time.Duration) {
	e := &Entry{
		Operation:  op,
		PageID:     kit.GetPageID(ctx),
		Transport:  kit.GetTransport(ctx),
		RequestID:  kit.GetRequestID(ctx),
		TraceID:    kit.GetTraceID(ctx),
		DurationMs: d.Milliseconds(),
	}
	if params != nil {
		if b, mErr := json.Marshal(params); mErr == nil {
			e.Parameters = string(b)
		}
	}
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	l.Log(e)
}

// Middleware audits every call of the wrapped endpoint under op.
func (l *Logger) Middleware(op string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			l.Record(ctx, op, req, err, time.Since(start))
			return resp, err
		}
	}
}

// Query returns the most recent entries matching f, newest first.
func (l *Logger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := `SELECT entry_id, timestamp, operation, page_id, transport, request_id,
		trace_id, parameters, error_message, duration_ms, status
		FROM audit_log WHERE 1=1`
	var args []any
	if f.PageID != "" {
		q += " AND page_id = ?"
		args = append(args, f.PageID)
	}
	if f.Operation != "" {
		q += " AND operation = ?"
		args = append(args, f.Operation)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " ORDER BY timestamp DESC, entry_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var ts int64
		var page, transport, reqID, traceID, errMsg sql.NullString
		var dur sql.NullInt64
		if err := rows.Scan(&e.EntryID, &ts, &e.Operation, &page, &transport, &reqID,
			&traceID, &e.Parameters, &errMsg, &dur, &e.Status); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.PageID, e.Transport, e.RequestID = page.String, transport.String, reqID.String
		e.TraceID, e.ErrorMessage, e.DurationMs = traceID.String, errMsg.String, dur.Int64
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close writes the queued entries and stops the writer.
func (l *Logger) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
	l.mu.Unlock()
	<-l.done
	return nil
}

func (l *Logger) fill(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Parameters == "" {
		e.Parameters = "{}"
	}
	if e.Status == "" {
		e.Status = "success"
		if e.ErrorMessage != "" {
			e.Status = "error"
		}
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := l.insert(ctx, e); err != nil {
			l.logger.Error("audit: write failed", "entry_id", e.EntryID, "error", err)
		}
		cancel()
	}
}

func (l *Logger) insert(ctx context.Context, e *Entry) error {
	_, err := dbopen.Exec(ctx, l.db, `INSERT INTO audit_log
		(entry_id, timestamp, operation, page_id, transport, request_id,
		 trace_id, parameters, error_message, duration_ms, status)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.EntryID, e.Timestamp.UnixMilli(), e.Operation, e.PageID, e.Transport, e.RequestID,
		e.TraceID, e.Parameters, e.ErrorMessage, e.DurationMs, e.Status)
	return err
}
