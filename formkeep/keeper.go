// Package formkeep keeps the form state of web pages made of a host document
// and a same-origin iframe. Every user edit is captured, debounced and
// persisted; when the page loads again the saved state is written back and
// input/change events are replayed so the page's own scripts recompute.
//
// A Keeper drives Chrome through CDP, one tab and one session per configured
// page, and exposes the sessions over HTTP and MCP.
package formkeep

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/formkeep/audit"
	"github.com/hazyhaar/formkeep/dbopen"
	"github.com/hazyhaar/formkeep/formkeep/internal/browser"
	"github.com/hazyhaar/formkeep/formkeep/internal/clickrule"
	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
	"github.com/hazyhaar/formkeep/formkeep/internal/session"
	"github.com/hazyhaar/formkeep/formkeep/internal/sink"
	"github.com/hazyhaar/formkeep/formkeep/internal/store"
	"github.com/hazyhaar/formkeep/formstate"
)

var (
	// ErrUnknownPage is returned for a page id no session runs under.
	ErrUnknownPage = errors.New("formkeep: unknown page")

	// ErrDeclined is returned by Reset when a confirmation was refused.
	ErrDeclined = session.ErrDeclined

	// ErrNoSnapshot is returned by Saved when nothing was persisted.
	ErrNoSnapshot = store.ErrNoSnapshot

	// ErrRestoring is returned by Save while a restore is being applied.
	ErrRestoring = session.ErrRestoring

	// ErrNoPrompter is returned by Reset when the page has no Prompter to
	// ask and the caller supplied none.
	ErrNoPrompter = session.ErrNoPrompter
)

// Option configures a Keeper.
type Option func(*Keeper)

// WithSinks adds sinks next to the ones declared in the config.
func WithSinks(s ...Sink) Option {
	return func(k *Keeper) { k.extra = append(k.extra, s...) }
}

// WithDB stores sqlite slots in db instead of opening Config.DBPath. The
// caller keeps ownership.
func WithDB(db *sql.DB) Option {
	return func(k *Keeper) { k.db = db }
}

// WithPrompter answers resets started without an explicit Prompter. By
// default browser pages ask through window.confirm in the tab itself.
func WithPrompter(p Prompter) Option {
	return func(k *Keeper) { k.prompt = p }
}

// Keeper is the top-level orchestrator. It owns the browser, the slot
// database, the sinks and one session per page.
type Keeper struct {
	cfg    *Config
	logger *slog.Logger
	rule   *clickrule.Rule
	mgr    *browser.Manager
	sinks  *sink.Router
	hub    *sink.Hub
	extra  []Sink
	prompt Prompter

	db    *sql.DB
	ownDB bool
	slots *store.SQLite
	audit *audit.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	pages    map[string]*keptPage
	recycled []*keptPage
	stopped  bool
}

type keptPage struct {
	cfg    PageConfig
	sess   *session.Session
	tab    *browser.Tab
	cancel context.CancelFunc
}

// New creates a Keeper from configuration. Nothing runs until Start.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Keeper, error) {
	if cfg == nil {
		return nil, fmt.Errorf("formkeep: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rule, err := clickrule.Compile(cfg.ClickRule)
	if err != nil {
		return nil, err
	}
	stealth, err := browser.ParseStealth(cfg.Browser.Stealth)
	if err != nil {
		return nil, err
	}

	k := &Keeper{
		cfg:    cfg,
		logger: logger,
		rule:   rule,
		pages:  make(map[string]*keptPage),
	}
	for _, o := range opts {
		o(k)
	}

	var sinks []Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, sink.NewStdout(nil))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, sc.Retries, logger))
		case "websocket":
			if k.hub == nil {
				k.hub = sink.NewHub(logger)
				sinks = append(sinks, k.hub)
			}
		}
	}
	k.sinks = sink.NewRouter(logger, append(sinks, k.extra...)...)

	k.mgr = browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Stealth:          stealth,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		Logger:           logger,
	})
	return k, nil
}

// Start opens the slot database, launches the browser when pages are
// configured and starts a session for each page. A page that fails to open
// is logged and skipped.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	if k.ctx != nil {
		k.mu.Unlock()
		return fmt.Errorf("formkeep: already started")
	}
	k.ctx, k.cancel = context.WithCancel(ctx)
	k.mu.Unlock()

	if err := k.openSlots(ctx); err != nil {
		return err
	}
	if len(k.cfg.Pages) == 0 {
		return nil
	}

	if _, err := k.mgr.Start(k.ctx); err != nil {
		return fmt.Errorf("formkeep: start browser: %w", err)
	}
	k.mgr.OnRecycle(browser.RecycleHooks{
		Before: k.closeTabs,
		After:  func(*rod.Browser) { k.reopenTabs() },
	})

	for _, pc := range k.cfg.Pages {
		if err := k.OpenPage(ctx, pc); err != nil {
			k.logger.Error("formkeep: failed to open page", "page", pc.ID, "url", pc.URL, "error", err)
		}
	}
	return nil
}

func (k *Keeper) openSlots(ctx context.Context) error {
	needed := k.db != nil
	for _, pc := range k.cfg.Pages {
		needed = needed || pc.Store == StoreSQLite
	}
	if !needed {
		return nil
	}
	if k.db == nil {
		db, err := dbopen.Open(k.cfg.DBPath, dbopen.WithMkdirAll())
		if err != nil {
			return fmt.Errorf("formkeep: open db: %w", err)
		}
		k.db, k.ownDB = db, true
	}
	slots, err := store.NewSQLite(ctx, k.db)
	if err != nil {
		return err
	}
	k.slots = slots
	k.audit, err = audit.New(ctx, k.db, 0, audit.WithLogger(k.logger))
	return err
}

// OpenPage opens a browser tab on pc.URL and starts keeping its form state.
func (k *Keeper) OpenPage(ctx context.Context, pc PageConfig) error {
	tab, err := browser.OpenTab(ctx, k.mgr, pc.URL, pc.ID)
	if err != nil {
		return fmt.Errorf("formkeep: open tab: %w", err)
	}
	tab.ResetButton = pc.ResetElementID()
	var backend store.Backend
	if pc.Store == StoreLocalStorage {
		backend = browser.NewLocalStorage(tab)
	}
	prompt := k.prompt
	if prompt == nil {
		prompt = browser.NewDialogPrompter(tab)
	}
	if err := k.attach(pc, tab, backend, prompt, tab); err != nil {
		tab.Close()
		return err
	}
	return nil
}

// attach starts a session over pg. A nil backend is chosen from pc.Store.
func (k *Keeper) attach(pc PageConfig, pg dom.Page, backend store.Backend, prompt Prompter, tab *browser.Tab) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch {
	case k.ctx == nil:
		return fmt.Errorf("formkeep: not started")
	case k.stopped:
		return fmt.Errorf("formkeep: stopped")
	case k.pages[pc.ID] != nil:
		return fmt.Errorf("formkeep: page %q already kept", pc.ID)
	}

	key := pc.StorageKey
	if backend == nil {
		switch pc.Store {
		case StoreMemory:
			backend = store.NewMemory()
		case StoreSQLite, "":
			if k.slots == nil {
				return fmt.Errorf("formkeep: page %q: no slot database", pc.ID)
			}
			backend, key = k.slots, sqliteKey(pc)
		default:
			return fmt.Errorf("formkeep: page %q: store %q needs a browser tab", pc.ID, pc.Store)
		}
	}

	sess, err := session.New(session.Config{
		PageID:  pc.ID,
		FrameID: pc.FrameID,
		Page:    pg,
		Slot:    store.NewSlot(backend, key),
		Sink:    k.sinks,
		Rule:    k.rule,
		Timing:  k.cfg.Timing,
		Prompt:  prompt,
		Logger:  k.logger,

		ResetElementID: pc.ResetElementID(),
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(k.ctx)
	go func() {
		if err := sess.Run(runCtx); err != nil {
			k.logger.Error("formkeep: session exited", "page", pc.ID, "error", err)
		}
	}()
	k.pages[pc.ID] = &keptPage{cfg: pc, sess: sess, tab: tab, cancel: cancel}
	k.logger.Info("formkeep: keeping page", "page", pc.ID, "url", pc.URL, "store", pc.Store)
	return nil
}

// sqliteKey namespaces the storage key by page, since one table serves
// every page.
func sqliteKey(pc PageConfig) string {
	return pc.ID + "/" + pc.StorageKey
}

// ClosePage stops keeping a page. Its pending save is flushed first.
func (k *Keeper) ClosePage(id string) error {
	k.mu.Lock()
	p := k.pages[id]
	delete(k.pages, id)
	k.mu.Unlock()
	if p == nil {
		return ErrUnknownPage
	}
	p.close()
	return nil
}

func (p *keptPage) close() {
	p.cancel()
	<-p.sess.Done()
	if p.tab != nil {
		p.tab.Close()
	}
}

// closeTabs runs before a browser recycle: browser-backed sessions flush
// and stop, and their configs are kept for reopenTabs.
func (k *Keeper) closeTabs() {
	k.mu.Lock()
	var closing []*keptPage
	for id, p := range k.pages {
		if p.tab != nil {
			closing = append(closing, p)
			delete(k.pages, id)
		}
	}
	k.recycled = closing
	k.mu.Unlock()

	for _, p := range closing {
		p.close()
	}
}

func (k *Keeper) reopenTabs() {
	k.mu.Lock()
	reopen := k.recycled
	k.recycled = nil
	ctx := k.ctx
	k.mu.Unlock()

	for _, p := range reopen {
		if err := k.OpenPage(ctx, p.cfg); err != nil {
			k.logger.Error("formkeep: reopen after recycle failed", "page", p.cfg.ID, "error", err)
		}
	}
}

// Stop flushes and stops every session, then shuts down the browser, the
// sinks and the database it opened.
func (k *Keeper) Stop() {
	k.mu.Lock()
	if k.stopped {
		k.mu.Unlock()
		return
	}
	k.stopped = true
	pages := k.pages
	k.pages = make(map[string]*keptPage)
	k.mu.Unlock()

	for id, p := range pages {
		p.close()
		k.logger.Info("formkeep: stopped page", "page", id)
	}
	if k.cancel != nil {
		k.cancel()
	}
	k.mgr.Close()
	k.sinks.Close()
	if k.audit != nil {
		k.audit.Close()
	}
	if k.ownDB {
		k.db.Close()
	}
}

// PageInfo describes one kept page.
type PageInfo struct {
	Status
	URL        string    `json:"url,omitempty"`
	Store      string    `json:"store"`
	StorageKey string    `json:"storage_key"`
	SavedAt    time.Time `json:"saved_at,omitzero"`
}

// Pages lists the kept pages ordered by id. SavedAt is filled for pages
// stored in the slot database.
func (k *Keeper) Pages(ctx context.Context) ([]PageInfo, error) {
	k.mu.Lock()
	out := make([]PageInfo, 0, len(k.pages))
	for _, p := range k.pages {
		out = append(out, PageInfo{
			Status:     p.sess.Status(),
			URL:        p.cfg.URL,
			Store:      p.cfg.Store,
			StorageKey: p.cfg.StorageKey,
		})
	}
	k.mu.Unlock()
	slices.SortFunc(out, func(a, b PageInfo) int { return strings.Compare(a.PageID, b.PageID) })

	if k.slots == nil {
		return out, nil
	}
	saved, err := k.slots.Keys(ctx)
	if err != nil {
		return out, err
	}
	for i, p := range out {
		if p.Store == StoreSQLite {
			out[i].SavedAt = saved[sqliteKey(PageConfig{ID: p.PageID, StorageKey: p.StorageKey})]
		}
	}
	return out, nil
}

func (k *Keeper) session(id string) (*session.Session, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p := k.pages[id]
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPage, id)
	}
	return p.sess, nil
}

// Status returns the status of one page.
func (k *Keeper) Status(id string) (Status, error) {
	s, err := k.session(id)
	if err != nil {
		return Status{}, err
	}
	return s.Status(), nil
}

// Live captures the current state of a page without saving it.
func (k *Keeper) Live(ctx context.Context, id string) (*formstate.Snapshot, error) {
	s, err := k.session(id)
	if err != nil {
		return nil, err
	}
	return s.Capture(ctx)
}

// Saved returns the persisted snapshot of a page, or ErrNoSnapshot.
func (k *Keeper) Saved(ctx context.Context, id string) (*formstate.Snapshot, error) {
	s, err := k.session(id)
	if err != nil {
		return nil, err
	}
	return s.Saved(ctx)
}

// Save persists a page now, cancelling any pending debounced save.
func (k *Keeper) Save(ctx context.Context, id string) (Status, error) {
	s, err := k.session(id)
	if err != nil {
		return Status{}, err
	}
	if err := s.SaveNow(ctx); err != nil {
		return Status{}, err
	}
	return s.Status(), nil
}

// Restore writes the persisted snapshot back into a page. It reports false
// when a restore was already running.
func (k *Keeper) Restore(ctx context.Context, id string) (bool, error) {
	s, err := k.session(id)
	if err != nil {
		return false, err
	}
	return s.Restore(ctx)
}

// Reset erases a page's saved and live state and reloads it, after both
// confirmations from p. A nil p uses the page's default Prompter: the one
// given to WithPrompter, else the browser's own dialogs.
func (k *Keeper) Reset(ctx context.Context, id string, p Prompter) error {
	s, err := k.session(id)
	if err != nil {
		return err
	}
	return s.Reset(ctx, p)
}

// remoteReset resets a page on behalf of an API caller. Omitted
// confirmations leave the decision to the page's default Prompter. Given
// ones answer the prompts, and the WithPrompter operator must still agree.
func (k *Keeper) remoteReset(ctx context.Context, id string, confirm, again *bool) error {
	if confirm == nil && again == nil {
		return k.Reset(ctx, id, nil)
	}
	var p Prompter = session.Answered(isTrue(confirm), isTrue(again))
	if k.prompt != nil {
		p = session.Chain(p, k.prompt)
	}
	return k.Reset(ctx, id, p)
}

func isTrue(b *bool) bool { return b != nil && *b }
