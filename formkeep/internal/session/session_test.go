package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/formkeep/formkeep/internal/config"
	"github.com/hazyhaar/formkeep/formkeep/internal/htmldoc"
	"github.com/hazyhaar/formkeep/formkeep/internal/sink"
	"github.com/hazyhaar/formkeep/formkeep/internal/store"
	"github.com/hazyhaar/formkeep/formstate"
)

const hostHTML = `<html><body>
<input id="patient-name" value="">
<input id="bleeding-1" type="checkbox">
<textarea id="notes"></textarea>
<select id="quadrant"><option value="1">1</option><option value="2">2</option></select>
<button id="next-tooth">Next</button>
<button id="perio-ext-reset-btn">Reset</button>
<span id="decor">x</span>
%s
</body></html>`

const chartHTML = `<html><body>
<input id="pd-18-1" value="">
<input id="implantat-18" type="checkbox">
<div id="tooth-18" style="display:block" class="tooth"></div>
</body></html>`

func host(withFrame bool) string {
	frame := ""
	if withFrame {
		frame = `<iframe id="periodontalchart" src="chart.html"></iframe>`
	}
	return strings.Replace(hostHTML, "%s", frame, 1)
}

var fast = config.TimingConfig{
	Debounce:     40 * time.Millisecond,
	RestoreHold:  60 * time.Millisecond,
	RestoreDelay: 10 * time.Millisecond,
	ArmDelay:     20 * time.Millisecond,
	ClickDelay:   5 * time.Millisecond,
	ReloadDelay:  10 * time.Millisecond,
}

type acks struct {
	mu      sync.Mutex
	saved   []sink.Ack
	notices []sink.Notification
}

func (a *acks) sink() sink.Sink {
	return sink.NewCallback(
		func(_ context.Context, n sink.Notification) error {
			a.mu.Lock()
			a.notices = append(a.notices, n)
			a.mu.Unlock()
			return nil
		},
		func(_ context.Context, ack sink.Ack) error {
			a.mu.Lock()
			a.saved = append(a.saved, ack)
			a.mu.Unlock()
			return nil
		})
}

func (a *acks) count() (saved, notices int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved), len(a.notices)
}

type harness struct {
	page   *htmldoc.Page
	mem    *store.Memory
	slot   *store.Slot
	acks   *acks
	s      *Session
	cancel context.CancelFunc
}

func newHarness(t *testing.T, page *htmldoc.Page, timing config.TimingConfig, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{page: page, mem: store.NewMemory(), acks: &acks{}}
	h.slot = store.NewSlot(h.mem, config.DefaultStorageKey)
	cfg := Config{
		PageID: "chart",
		Page:   page,
		Slot:   h.slot,
		Sink:   h.acks.sink(),
		Timing: timing,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.s = s
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.s.Done()
	})
}

func (h *harness) stop() {
	h.cancel()
	<-h.s.Done()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitArmed(t *testing.T) {
	t.Helper()
	waitFor(t, "armed", func() bool { return h.s.Status().State == StateArmed.String() })
}

// waitIdle waits for the startup restore's guard to release.
func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	waitFor(t, "guard release", func() bool { return !h.s.Status().Restoring })
}

func (h *harness) waitSaves(t *testing.T, n int) {
	t.Helper()
	waitFor(t, "saves", func() bool { return h.s.Status().Saves >= n })
}

func seed(t *testing.T, slot *store.Slot, main formstate.DocumentState, frame *formstate.DocumentState) {
	t.Helper()
	if err := slot.Save(context.Background(), &formstate.Snapshot{MainPage: main, IframePage: frame}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestNoFrameRestoreThenSave(t *testing.T) {
	h := newHarness(t, htmldoc.MustPage(host(false)), fast)
	st := formstate.NewDocumentState()
	st.Inputs["bleeding-1"] = formstate.Bool(true)
	st.TextareaValues["notes"] = "ok"
	seed(t, h.slot, st, nil)

	h.run(t)
	h.waitArmed(t)

	doc := h.page.MainDocument()
	if c, _ := doc.Element("bleeding-1").Checked(); !c {
		t.Error("bleeding-1 not restored")
	}
	if v, _ := doc.Element("notes").Value(); v != "ok" {
		t.Errorf("notes: got %q", v)
	}
	status := h.s.Status()
	if status.Frame != FrameUnavailable.String() || status.Restores != 1 {
		t.Errorf("status: %+v", status)
	}
	if _, n := h.acks.count(); n != 2 {
		t.Errorf("restore notifications: got %d, want 2", n)
	}

	h.waitIdle(t)
	doc.UserInput("patient-name", "Doe")
	h.waitSaves(t, 1)

	saved, err := h.slot.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.IframePage != nil {
		t.Error("host-only page saved an iframePage")
	}
	if v := saved.MainPage.Inputs["patient-name"]; v.String() != "Doe" {
		t.Errorf("patient-name: got %v", v)
	}
	if !saved.MainPage.Inputs["bleeding-1"].Checked() {
		t.Error("restored state lost by the next save")
	}
}

func TestDebounceCoalescesEdits(t *testing.T) {
	h := newHarness(t, htmldoc.MustPage(host(false)), fast)
	h.run(t)
	h.waitArmed(t)

	doc := h.page.MainDocument()
	for _, v := range []string{"D", "Do", "Doe", "Doe,", "Doe, J"} {
		doc.UserInput("patient-name", v)
		time.Sleep(5 * time.Millisecond)
	}
	h.waitSaves(t, 1)
	time.Sleep(3 * fast.Debounce)

	if n := h.s.Status().Saves; n != 1 {
		t.Fatalf("saves: got %d, want 1", n)
	}
	saved, _ := h.slot.Load(context.Background())
	if v := saved.MainPage.Inputs["patient-name"].String(); v != "Doe, J" {
		t.Errorf("saved value: got %q, want last edit", v)
	}
}

func TestRestoreSuppressesSave(t *testing.T) {
	h := newHarness(t, htmldoc.MustPage(host(false)), fast)
	st := formstate.NewDocumentState()
	st.Inputs["patient-name"] = formstate.Text("Roe")
	st.SelectValues["quadrant"] = "2"
	seed(t, h.slot, st, nil)

	h.run(t)
	h.waitArmed(t)
	h.waitIdle(t)

	// Listeners are armed now, so this restore's events reach the session.
	applied, err := h.s.Restore(context.Background())
	if err != nil || !applied {
		t.Fatalf("Restore: %v %v", applied, err)
	}
	if !h.s.Status().Restoring {
		t.Error("guard not held right after restore")
	}
	time.Sleep(fast.RestoreHold + 3*fast.Debounce)
	if n := h.s.Status().Saves; n != 0 {
		t.Fatalf("restore triggered %d saves", n)
	}

	h.page.MainDocument().UserSelect("quadrant", "1")
	h.waitSaves(t, 1)
}

func TestClickRuleTriggersSave(t *testing.T) {
	h := newHarness(t, htmldoc.MustPage(host(false)), fast)
	h.run(t)
	h.waitArmed(t)

	doc := h.page.MainDocument()
	doc.UserClick("decor")
	time.Sleep(fast.ClickDelay + 3*fast.Debounce)
	if n := h.s.Status().Saves; n != 0 {
		t.Fatalf("click on plain span saved (%d)", n)
	}

	doc.UserClick("next-tooth")
	h.waitSaves(t, 1)
}

func TestFrameReadyFlow(t *testing.T) {
	page := htmldoc.MustPage(host(true))
	frame, err := page.AttachFrame(config.DefaultFrameID, chartHTML)
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, page, fast)
	fst := formstate.NewDocumentState()
	fst.Inputs["pd-18-1"] = formstate.Text("4")
	fst.DivStates["tooth-18"] = formstate.ContainerState{Display: "none", ClassList: []string{"tooth", "missing"}}
	seed(t, h.slot, formstate.NewDocumentState(), &fst)

	h.run(t)
	time.Sleep(fast.ArmDelay * 3)
	if st := h.s.Status().State; st != StateInit.String() {
		t.Fatalf("state before frame load: %s", st)
	}

	frame.Load()
	h.waitArmed(t)

	fdoc := page.FrameDocument(config.DefaultFrameID)
	if v, _ := fdoc.Element("pd-18-1").Value(); v != "4" {
		t.Errorf("frame field not restored: %q", v)
	}
	if d, _ := fdoc.Element("tooth-18").InlineDisplay(); d != "none" {
		t.Errorf("frame container display: %q", d)
	}
	if h.s.Status().Frame != FrameResolved.String() {
		t.Errorf("frame state: %s", h.s.Status().Frame)
	}

	h.waitIdle(t)
	fdoc.UserClick("implantat-18")
	h.waitSaves(t, 1)

	saved, _ := h.slot.Load(context.Background())
	if !saved.HasFrame() {
		t.Fatal("saved snapshot lacks iframePage")
	}
	if saved.IframePage.Inputs["pd-18-1"].String() != "4" {
		t.Errorf("frame value: %v", saved.IframePage.Inputs["pd-18-1"])
	}
}

func TestCrossOriginFrameIsSkipped(t *testing.T) {
	page := htmldoc.MustPage(host(true))
	frame, _ := page.AttachFrame(config.DefaultFrameID, chartHTML)
	frame.SetCrossOrigin()
	h := newHarness(t, page, fast)
	h.run(t)

	frame.Load()
	h.waitArmed(t)
	if h.s.Status().Frame != FrameUnavailable.String() {
		t.Errorf("frame state: %s", h.s.Status().Frame)
	}

	snap, err := h.s.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if snap.HasFrame() {
		t.Error("cross-origin frame captured")
	}
	if _, ok := snap.MainPage.Inputs["bleeding-1"]; !ok {
		t.Error("host capture missing")
	}
}

func TestMalformedSavedDataStillArms(t *testing.T) {
	h := newHarness(t, htmldoc.MustPage(host(false)), fast)
	h.mem.Put(context.Background(), config.DefaultStorageKey, []byte(`{"mainPage":`))

	h.run(t)
	h.waitArmed(t)
	if h.s.Status().Restores != 0 {
		t.Error("restored from malformed data")
	}
	h.page.MainDocument().UserInput("notes", "fresh")
	h.waitSaves(t, 1)
}

func TestSaveFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, htmldoc.MustPage(host(false)), fast)
	h.run(t)
	h.waitArmed(t)

	h.mem.FailWith(errors.New("QuotaExceededError"))
	doc := h.page.MainDocument()
	doc.UserInput("notes", "lost")
	time.Sleep(3 * fast.Debounce)
	if n := h.s.Status().Saves; n != 0 {
		t.Fatalf("failed save counted: %d", n)
	}

	h.mem.FailWith(nil)
	doc.UserInput("notes", "kept")
	h.waitSaves(t, 1)
}

func TestResetDeclined(t *testing.T) {
	h := newHarness(t, htmldoc.MustPage(host(false)), fast)
	st := formstate.NewDocumentState()
	st.TextareaValues["notes"] = "keep me"
	seed(t, h.slot, st, nil)
	h.run(t)
	h.waitArmed(t)

	for _, answers := range [][]bool{{false}, {true, false}} {
		err := h.s.Reset(context.Background(), Answered(answers...))
		if !errors.Is(err, ErrDeclined) {
			t.Fatalf("Reset(%v): got %v, want ErrDeclined", answers, err)
		}
	}
	if _, err := h.slot.Load(context.Background()); err != nil {
		t.Fatalf("slot touched by declined reset: %v", err)
	}
	if v, _ := h.page.MainDocument().Element("notes").Value(); v != "keep me" {
		t.Errorf("notes changed: %q", v)
	}
	if h.page.Reloads() != 0 {
		t.Error("declined reset reloaded")
	}
}

func TestResetCompleteness(t *testing.T) {
	page := htmldoc.MustPage(host(true))
	frame, _ := page.AttachFrame(config.DefaultFrameID, chartHTML)
	timing := fast
	timing.ReloadDelay = 150 * time.Millisecond
	h := newHarness(t, page, timing)

	fst := formstate.NewDocumentState()
	fst.Inputs["pd-18-1"] = formstate.Text("5")
	fst.Inputs["implantat-18"] = formstate.Bool(true)
	mst := formstate.NewDocumentState()
	mst.Inputs["bleeding-1"] = formstate.Bool(true)
	mst.SelectValues["quadrant"] = "2"
	mst.TextareaValues["notes"] = "x"
	seed(t, h.slot, mst, &fst)

	h.run(t)
	frame.Load()
	h.waitArmed(t)

	p := Answered(true, true)
	if err := h.s.Reset(context.Background(), p); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := h.slot.Load(context.Background()); !errors.Is(err, store.ErrNoSnapshot) {
		t.Fatalf("slot after reset: %v", err)
	}

	snap, err := h.s.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	for _, st := range []formstate.DocumentState{snap.MainPage, *snap.IframePage} {
		for k, v := range st.Inputs {
			if v.Checked() {
				t.Errorf("input %s not cleared: %v", k, v)
			}
		}
		for k, v := range st.TextareaValues {
			if v != "" {
				t.Errorf("textarea %s not cleared: %q", k, v)
			}
		}
	}
	if snap.MainPage.SelectValues["quadrant"] != "1" {
		t.Errorf("select not reset to first option: %q", snap.MainPage.SelectValues["quadrant"])
	}
	if len(p.Notices) != 1 {
		t.Errorf("notices: %v", p.Notices)
	}

	waitFor(t, "reload", func() bool { return page.Reloads() == 1 })
	waitFor(t, "re-init", func() bool { return h.s.Status().Reloads == 1 })
	page.AttachedFrame(config.DefaultFrameID).Load()
	h.waitArmed(t)

	time.Sleep(3 * timing.Debounce)
	if _, err := h.slot.Load(context.Background()); !errors.Is(err, store.ErrNoSnapshot) {
		t.Fatalf("clear events were saved: %v", err)
	}
	if n := h.s.Status().Saves; n != 0 {
		t.Errorf("saves after reset: %d", n)
	}
}

func TestTeardownFlushes(t *testing.T) {
	timing := fast
	timing.Debounce = time.Hour
	h := newHarness(t, htmldoc.MustPage(host(false)), timing)
	h.run(t)
	h.waitArmed(t)

	h.page.MainDocument().UserInput("notes", "last words")
	waitFor(t, "event processed", func() bool {
		snap, _ := h.s.Capture(context.Background())
		return snap != nil && snap.MainPage.TextareaValues["notes"] == "last words"
	})
	h.stop()

	saved, err := h.slot.Load(context.Background())
	if err != nil {
		t.Fatalf("Load after teardown: %v", err)
	}
	if saved.MainPage.TextareaValues["notes"] != "last words" {
		t.Errorf("final save: %q", saved.MainPage.TextareaValues["notes"])
	}
	h.acks.mu.Lock()
	defer h.acks.mu.Unlock()
	if len(h.acks.saved) != 1 || !h.acks.saved[0].Final {
		t.Errorf("acks: %+v", h.acks.saved)
	}

	if _, err := h.s.Capture(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Capture after stop: got %v, want ErrClosed", err)
	}
}

func TestSaveNow(t *testing.T) {
	h := newHarness(t, htmldoc.MustPage(host(false)), fast)
	h.run(t)
	h.waitArmed(t)
	if err := h.s.SaveNow(context.Background()); err != nil {
		t.Fatalf("SaveNow: %v", err)
	}
	if n := h.s.Status().Saves; n != 1 {
		t.Errorf("saves: %d", n)
	}
	if _, err := h.slot.Load(context.Background()); err != nil {
		t.Errorf("slot: %v", err)
	}
}

func TestTerminalPrompter(t *testing.T) {
	var out strings.Builder
	p := NewTerminal(strings.NewReader("y\nno\n"), &out)
	ctx := context.Background()
	if ok, _ := p.Confirm(ctx, "first?"); !ok {
		t.Error("y should confirm")
	}
	if ok, _ := p.Confirm(ctx, "second?"); ok {
		t.Error("no should decline")
	}
	if ok, err := p.Confirm(ctx, "third?"); ok || err != nil {
		t.Errorf("EOF: %v %v", ok, err)
	}
	if !strings.Contains(out.String(), "second? [y/N]") {
		t.Errorf("prompt output: %q", out.String())
	}
}

func (h *harness) waitNavigations(t *testing.T, n int) {
	t.Helper()
	waitFor(t, "navigation", func() bool { return h.s.Status().Navigations >= n })
}

func savedField(t *testing.T, slot *store.Slot, id string) string {
	t.Helper()
	snap, err := slot.Load(context.Background())
	if err != nil {
		return ""
	}
	return snap.MainPage.Inputs[id].String()
}

func TestUserReloadRestoresAndRearms(t *testing.T) {
	h := newHarness(t, htmldoc.MustPage(host(false)), fast)
	h.run(t)
	h.waitArmed(t)

	h.page.MainDocument().UserInput("patient-name", "Ada")
	h.waitSaves(t, 1)

	if err := h.page.UserReload(); err != nil {
		t.Fatal(err)
	}
	h.waitNavigations(t, 1)
	h.waitArmed(t)
	waitFor(t, "restore", func() bool { return h.s.Status().Restores >= 1 })
	h.waitIdle(t)

	doc := h.page.MainDocument()
	if v, _ := doc.Element("patient-name").Value(); v != "Ada" {
		t.Fatalf("after reload: patient-name = %q, want Ada", v)
	}
	if h.page.Reloads() != 0 || h.s.Status().Reloads != 0 {
		t.Error("page-initiated reload counted as a keeper reload")
	}

	doc.UserInput("patient-name", "Bob")
	waitFor(t, "save of the new document", func() bool {
		return savedField(t, h.slot, "patient-name") == "Bob"
	})
}

func TestUnloadSavesPendingEdit(t *testing.T) {
	timing := fast
	timing.Debounce = time.Hour
	h := newHarness(t, htmldoc.MustPage(host(false)), timing)
	h.run(t)
	h.waitArmed(t)

	h.page.MainDocument().UserInput("patient-name", "pending")
	if err := h.page.UserReload(); err != nil {
		t.Fatal(err)
	}
	h.waitSaves(t, 1)
	if got := savedField(t, h.slot, "patient-name"); got != "pending" {
		t.Fatalf("unload save: patient-name = %q", got)
	}
	h.acks.mu.Lock()
	final := len(h.acks.saved) > 0 && h.acks.saved[0].Final
	h.acks.mu.Unlock()
	if !final {
		t.Error("unload save not marked final")
	}
}

func TestUnloadDuringRestoreDoesNotSave(t *testing.T) {
	timing := fast
	timing.RestoreHold = time.Second
	h := newHarness(t, htmldoc.MustPage(host(false)), timing)
	st := formstate.NewDocumentState()
	st.Inputs["patient-name"] = formstate.Text("Ada")
	seed(t, h.slot, st, nil)

	h.run(t)
	waitFor(t, "restore", func() bool {
		s := h.s.Status()
		return s.Restores == 1 && s.Restoring
	})
	h.waitArmed(t)
	if err := h.page.UserReload(); err != nil {
		t.Fatal(err)
	}
	h.waitNavigations(t, 1)
	if n := h.s.Status().Saves; n != 0 {
		t.Fatalf("saved during restore: %d", n)
	}
}

func TestFrameNavigationRestartsSession(t *testing.T) {
	page := htmldoc.MustPage(host(true))
	frame, _ := page.AttachFrame(config.DefaultFrameID, chartHTML)
	h := newHarness(t, page, fast)
	fst := formstate.NewDocumentState()
	fst.Inputs["pd-18-1"] = formstate.Text("4")
	seed(t, h.slot, formstate.NewDocumentState(), &fst)

	h.run(t)
	frame.Load()
	h.waitArmed(t)

	if err := page.UserReloadFrame(config.DefaultFrameID); err != nil {
		t.Fatal(err)
	}
	h.waitNavigations(t, 1)
	if st := h.s.Status().State; st != StateInit.String() {
		t.Fatalf("state while the new frame loads: %s", st)
	}
	page.AttachedFrame(config.DefaultFrameID).Load()
	h.waitArmed(t)
	waitFor(t, "frame restore", func() bool { return h.s.Status().Restores >= 2 })

	fdoc := page.FrameDocument(config.DefaultFrameID)
	if v, _ := fdoc.Element("pd-18-1").Value(); v != "4" {
		t.Errorf("new frame document not restored: %q", v)
	}
	h.waitIdle(t)
	n := h.s.Status().Saves
	fdoc.UserClick("implantat-18")
	h.waitSaves(t, n+1)
}

func TestResetElementClick(t *testing.T) {
	prompt := Answered(true, true)
	h := newHarness(t, htmldoc.MustPage(host(false)), fast, func(c *Config) {
		c.Prompt = prompt
		c.ResetElementID = "perio-ext-reset-btn"
	})
	st := formstate.NewDocumentState()
	st.TextareaValues["notes"] = "x"
	seed(t, h.slot, st, nil)
	h.run(t)
	h.waitArmed(t)
	h.waitIdle(t)

	if err := h.page.MainDocument().UserClick("perio-ext-reset-btn"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reload", func() bool { return h.page.Reloads() == 1 })
	if _, err := h.slot.Load(context.Background()); !errors.Is(err, store.ErrNoSnapshot) {
		t.Fatalf("slot after reset click: %v", err)
	}
	prompt.mu.Lock()
	notices := len(prompt.Notices)
	prompt.mu.Unlock()
	if notices != 1 {
		t.Errorf("notices: %d", notices)
	}
}

func TestResetElementClickDeclined(t *testing.T) {
	h := newHarness(t, htmldoc.MustPage(host(false)), fast, func(c *Config) {
		c.Prompt = Answered(true, false)
		c.ResetElementID = "perio-ext-reset-btn"
	})
	st := formstate.NewDocumentState()
	st.TextareaValues["notes"] = "keep me"
	seed(t, h.slot, st, nil)
	h.run(t)
	h.waitArmed(t)
	h.waitIdle(t)

	h.page.MainDocument().UserClick("perio-ext-reset-btn")
	if _, err := h.s.Capture(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(3 * fast.ReloadDelay)
	if h.page.Reloads() != 0 {
		t.Error("declined reset reloaded")
	}
	if _, err := h.slot.Load(context.Background()); err != nil {
		t.Fatalf("declined reset touched the slot: %v", err)
	}
}

func TestResetWithoutPrompter(t *testing.T) {
	h := newHarness(t, htmldoc.MustPage(host(false)), fast)
	h.run(t)
	if err := h.s.Reset(context.Background(), nil); !errors.Is(err, ErrNoPrompter) {
		t.Fatalf("Reset without prompter: %v", err)
	}
}

func TestChainNeedsEveryConfirmation(t *testing.T) {
	a, b := Answered(true, true), Answered(true, false)
	p := Chain(a, b)
	ctx := context.Background()
	if ok, _ := p.Confirm(ctx, ResetPrompt); !ok {
		t.Fatal("first confirmation declined")
	}
	if ok, _ := p.Confirm(ctx, ResetConfirmPrompt); ok {
		t.Fatal("second confirmation accepted over a refusal")
	}
	if err := p.Notify(ctx, ResetDoneNotice); err != nil {
		t.Fatal(err)
	}
	if len(a.Notices) != 1 || len(b.Notices) != 1 {
		t.Errorf("notices: %q %q", a.Notices, b.Notices)
	}
}
