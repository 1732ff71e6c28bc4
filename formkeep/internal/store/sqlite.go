package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/formkeep/dbopen"
)

// Schema creates the slot table.
const Schema = `CREATE TABLE IF NOT EXISTS form_slots (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLite stores slots in the form_slots table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates the table if needed. The caller owns db.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if _, err := dbopen.Exec(ctx, db, Schema); err != nil {
		return nil, fmt.Errorf("store: sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM form_slots WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("store: sqlite get: %w", err)
	}
	return v, nil
}

func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO form_slots (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: sqlite put: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := dbopen.Exec(ctx, s.db, `DELETE FROM form_slots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: sqlite delete: %w", err)
	}
	return nil
}

// Keys lists stored slot names with their last update time.
func (s *SQLite) Keys(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, updated_at FROM form_slots ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite keys: %w", err)
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var k string
		var ms int64
		if err := rows.Scan(&k, &ms); err != nil {
			return nil, fmt.Errorf("store: sqlite keys: %w", err)
		}
		out[k] = time.UnixMilli(ms)
	}
	return out, rows.Err()
}
