package browser

import (
	"context"
	"fmt"

	"github.com/hazyhaar/formkeep/formkeep/internal/store"
)

// LocalStorage is a store.Backend over the host page's window.localStorage,
// so the slot is shared with any script on the page that reads it.
type LocalStorage struct {
	tab *Tab
}

// NewLocalStorage binds to the tab's host document.
func NewLocalStorage(t *Tab) *LocalStorage {
	return &LocalStorage{tab: t}
}

func (l *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := l.tab.Page.Context(ctx).Eval(
		`k => { const v = window.localStorage.getItem(k); return v === null ? { found: false } : { found: true, value: v } }`, key)
	if err != nil {
		return nil, fmt.Errorf("browser: localStorage get: %w", err)
	}
	if !res.Value.Get("found").Bool() {
		return nil, store.ErrNoSnapshot
	}
	return []byte(res.Value.Get("value").Str()), nil
}

// Put surfaces QuotaExceededError and friends as errors.
func (l *LocalStorage) Put(ctx context.Context, key string, value []byte) error {
	_, err := l.tab.Page.Context(ctx).Eval(`(k, v) => { window.localStorage.setItem(k, v) }`, key, string(value))
	if err != nil {
		return fmt.Errorf("browser: localStorage set: %w", err)
	}
	return nil
}

func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	_, err := l.tab.Page.Context(ctx).Eval(`k => { window.localStorage.removeItem(k) }`, key)
	if err != nil {
		return fmt.Errorf("browser: localStorage remove: %w", err)
	}
	return nil
}
