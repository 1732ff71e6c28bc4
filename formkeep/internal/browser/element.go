package browser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
)

// Element is a remote element handle. el carries the context of the call
// that found it, so every Eval is bounded by that call.
type Element struct {
	el  *rod.Element
	log *slog.Logger

	once sync.Once
	meta elementMeta
}

type elementMeta struct {
	Tag  string `json:"tag"`
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

const metaJS = `() => {
	const tag = this.tagName.toLowerCase();
	return JSON.stringify({
		tag: tag,
		id: this.id || "",
		name: this.getAttribute("name") || "",
		type: tag === "input" ? (this.type || "text").toLowerCase() : "",
	});
}`

// load fetches the identity fields in one round trip. A failure leaves them
// empty, which makes the element untracked.
func (e *Element) load() elementMeta {
	e.once.Do(func() {
		res, err := e.el.Eval(metaJS)
		if err != nil {
			e.log.Debug("browser: element identity unavailable", "error", err)
			return
		}
		m, err := decodeMeta(res.Value.Str())
		if err != nil {
			e.log.Warn("browser: bad element identity", "error", err)
			return
		}
		e.meta = m
	})
	return e.meta
}

func decodeMeta(raw string) (elementMeta, error) {
	var m elementMeta
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return elementMeta{}, fmt.Errorf("browser: element identity: %w", err)
	}
	return m, nil
}

func (e *Element) Tag() dom.Tag { return dom.Tag(e.load().Tag) }
func (e *Element) ID() string   { return e.load().ID }
func (e *Element) Name() string { return e.load().Name }
func (e *Element) Type() string { return e.load().Type }

func (e *Element) Checked() (bool, error) {
	res, err := e.el.Eval(`() => !!this.checked`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (e *Element) SetChecked(checked bool) error {
	_, err := e.el.Eval(`c => { this.checked = c }`, checked)
	return err
}

func (e *Element) Value() (string, error) {
	res, err := e.el.Eval(`() => this.value == null ? "" : String(this.value)`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *Element) SetValue(v string) error {
	_, err := e.el.Eval(`v => { this.value = v }`, v)
	return err
}

func (e *Element) SelectFirst() error {
	_, err := e.el.Eval(`() => { this.selectedIndex = this.options && this.options.length ? 0 : -1 }`)
	return err
}

func (e *Element) InlineDisplay() (string, error) {
	res, err := e.el.Eval(`() => this.style ? this.style.display : ""`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *Element) SetInlineDisplay(v string) error {
	_, err := e.el.Eval(`v => { this.style.display = v }`, v)
	return err
}

func (e *Element) Classes() ([]string, error) {
	res, err := e.el.Eval(`() => JSON.stringify(Array.from(this.classList))`)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal([]byte(res.Value.Str()), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Element) SetClasses(classes []string) error {
	_, err := e.el.Eval(`c => { this.className = ""; for (const x of c) this.classList.add(x) }`, classes)
	return err
}

// Dispatch fires a bubbling event. Clicks go through click() so default
// activation runs as for a user click.
func (e *Element) Dispatch(typ dom.EventType) error {
	if typ == dom.EventClick {
		_, err := e.el.Eval(`() => this.click()`)
		return err
	}
	_, err := e.el.Eval(`t => this.dispatchEvent(new Event(t, { bubbles: true }))`, string(typ))
	return err
}
