package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
pages:
  - url: http://localhost:8000/chart.html
`), env(nil))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p := cfg.Pages[0]
	if p.ID != DefaultPageID || p.FrameID != DefaultFrameID || p.StorageKey != DefaultStorageKey || p.Store != StoreSQLite {
		t.Errorf("page defaults: %+v", p)
	}
	if p.ResetElementID() != DefaultResetButton {
		t.Errorf("reset element: %q", p.ResetElementID())
	}
	if cfg.Timing != DefaultTiming() {
		t.Errorf("timing: got %+v", cfg.Timing)
	}
	if cfg.Timing.Debounce != 500*time.Millisecond || cfg.Timing.ArmDelay != 800*time.Millisecond || cfg.Timing.ClickDelay != 100*time.Millisecond {
		t.Errorf("timing values: %+v", cfg.Timing)
	}
	if cfg.Browser.Stealth != "headless" || cfg.DBPath != "formkeep.db" {
		t.Errorf("browser/db defaults: %+v %q", cfg.Browser, cfg.DBPath)
	}
}

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(`
db_path: /var/lib/formkeep/fk.db
browser:
  remote: ws://chrome:9222
  stealth: headful
pages:
  - id: chart
    url: https://clinic.example/chart
    frame_id: chartframe
    store: LocalStorage
  - id: intake
    url: https://clinic.example/intake
    store: memory
timing:
  debounce: 1s
  click_delay: 50ms
click_rule: 'tag == "button"'
sinks:
  - type: webhook
    url: https://hooks.example/formkeep
    retries: 5
  - type: websocket
http:
  addr: ":8088"
`), env(nil))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Pages[0].Store != StoreLocalStorage || cfg.Pages[0].FrameID != "chartframe" {
		t.Errorf("page 0: %+v", cfg.Pages[0])
	}
	if cfg.Pages[1].StorageKey != DefaultStorageKey {
		t.Errorf("page 1 storage key: %q", cfg.Pages[1].StorageKey)
	}
	if cfg.Timing.Debounce != time.Second || cfg.Timing.ClickDelay != 50*time.Millisecond || cfg.Timing.RestoreHold != 500*time.Millisecond {
		t.Errorf("timing: %+v", cfg.Timing)
	}
	if len(cfg.Sinks) != 2 || cfg.Sinks[0].Retries != 5 {
		t.Errorf("sinks: %+v", cfg.Sinks)
	}
	if cfg.HTTP.Addr != ":8088" || cfg.ClickRule != `tag == "button"` {
		t.Errorf("http/click: %+v %q", cfg.HTTP, cfg.ClickRule)
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
pages:
  - id: chart
    url: https://a.example
`), env(map[string]string{
		"FORMKEEP_URL":         "https://b.example",
		"FORMKEEP_STORE":       "memory",
		"FORMKEEP_DEBOUNCE":    "250ms",
		"FORMKEEP_HTTP_ADDR":   ":9000",
		"FORMKEEP_WEBHOOK_URL": "https://hooks.example",
	}))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Pages[0].URL != "https://b.example" || cfg.Pages[0].Store != StoreMemory || cfg.Pages[0].ID != "chart" {
		t.Errorf("page override: %+v", cfg.Pages[0])
	}
	if cfg.Timing.Debounce != 250*time.Millisecond || cfg.HTTP.Addr != ":9000" {
		t.Errorf("overrides: %+v %+v", cfg.Timing, cfg.HTTP)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Type != "webhook" {
		t.Errorf("webhook sink: %+v", cfg.Sinks)
	}
}

func TestEnvCreatesPage(t *testing.T) {
	cfg, err := Parse(nil, env(map[string]string{"FORMKEEP_URL": "file:///tmp/chart.html"}))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Pages) != 1 || cfg.Pages[0].ID != DefaultPageID {
		t.Fatalf("pages: %+v", cfg.Pages)
	}
}

func TestResetButtonDisabled(t *testing.T) {
	cfg, err := Parse(nil, env(map[string]string{
		"FORMKEEP_URL":          "file:///tmp/chart.html",
		"FORMKEEP_RESET_BUTTON": ResetButtonNone,
	}))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id := cfg.Pages[0].ResetElementID(); id != "" {
		t.Errorf("disabled reset element: %q", id)
	}
}

func TestValidate(t *testing.T) {
	_, err := Parse([]byte(`
pages:
  - id: a
    url: x
    store: redis
  - id: a
sinks:
  - type: webhook
  - type: carrier-pigeon
`), env(nil))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"unknown store", "duplicate id", "url is required", "webhook needs url", "unknown type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}

	if _, err := Parse(nil, env(map[string]string{"FORMKEEP_DEBOUNCE": "soon"})); err == nil {
		t.Error("bad duration: expected error")
	}
}

func TestLoadFileAndDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "formkeep.yaml")
	os.WriteFile(path, []byte("pages:\n  - url: http://x\n"), 0o644)

	dotenv := filepath.Join(dir, "test.env")
	os.WriteFile(dotenv, []byte("FORMKEEP_STORAGE_KEY=fromdotenv\n"), 0o644)
	t.Setenv("FORMKEEP_STORAGE_KEY", "")
	os.Unsetenv("FORMKEEP_STORAGE_KEY")

	if err := LoadDotenv(filepath.Join(dir, "missing.env"), dotenv); err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Pages[0].StorageKey != "fromdotenv" {
		t.Errorf("storage key: got %q", cfg.Pages[0].StorageKey)
	}
}
