// Package config loads formkeep configuration from a YAML file, a .env file
// and FORMKEEP_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backend names.
const (
	StoreSQLite       = "sqlite"
	StoreLocalStorage = "localstorage"
	StoreMemory       = "memory"
)

// Defaults matching the periodontal chart the keeper was written for.
const (
	DefaultStorageKey = "periodontalChartData"
	DefaultFrameID    = "periodontalchart"
	DefaultPageID     = "default"

	// DefaultResetButton is the id of the in-page reset button.
	DefaultResetButton = "perio-ext-reset-btn"
	// ResetButtonNone disables the in-page reset button.
	ResetButtonNone = "none"
)

// Config is the top-level formkeep configuration.
type Config struct {
	DBPath    string        `yaml:"db_path"`
	Browser   BrowserConfig `yaml:"browser"`
	Pages     []PageConfig  `yaml:"pages"`
	Timing    TimingConfig  `yaml:"timing"`
	ClickRule string        `yaml:"click_rule"`
	Sinks     []SinkConfig  `yaml:"sinks"`
	HTTP      HTTPConfig    `yaml:"http"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// PageConfig is one page whose form state is kept.
type PageConfig struct {
	ID         string `yaml:"id"`
	URL        string `yaml:"url"`
	FrameID    string `yaml:"frame_id"`
	StorageKey string `yaml:"storage_key"`
	Store      string `yaml:"store"` // sqlite | localstorage | memory
	// ResetButton is the id of the element whose click starts a reset.
	// "none" disables it.
	ResetButton string `yaml:"reset_button"`
}

// ResetElementID returns the reset element id, or "" when disabled.
func (p PageConfig) ResetElementID() string {
	if p.ResetButton == ResetButtonNone {
		return ""
	}
	return p.ResetButton
}

// TimingConfig holds the session delays.
type TimingConfig struct {
	Debounce     time.Duration `yaml:"debounce"`
	RestoreHold  time.Duration `yaml:"restore_hold"`
	RestoreDelay time.Duration `yaml:"restore_delay"`
	ArmDelay     time.Duration `yaml:"arm_delay"`
	ClickDelay   time.Duration `yaml:"click_delay"`
	ReloadDelay  time.Duration `yaml:"reload_delay"`
}

// SinkConfig defines a notification backend.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook | websocket
	URL     string `yaml:"url"`  // webhook
	Retries int    `yaml:"retries"`
}

// HTTPConfig controls the API listener. Empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML file, applies environment overrides and defaults,
// then validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes YAML (possibly empty) and finalises it with lookup as the
// environment.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotenv loads .env style files into the process environment without
// overriding variables already set. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: dotenv %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from FORMKEEP_* variables. FORMKEEP_URL,
// FORMKEEP_FRAME_ID, FORMKEEP_STORAGE_KEY, FORMKEEP_STORE and
// FORMKEEP_RESET_BUTTON target the first page, creating it when the file declared none.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}
	str := func(name string, dst *string) {
		if v, ok := lookup("FORMKEEP_" + name); ok && v != "" {
			*dst = v
		}
	}
	str("DB_PATH", &c.DBPath)
	str("BROWSER_REMOTE", &c.Browser.Remote)
	str("STEALTH", &c.Browser.Stealth)
	str("XVFB_DISPLAY", &c.Browser.XvfbDisplay)
	str("CLICK_RULE", &c.ClickRule)
	str("HTTP_ADDR", &c.HTTP.Addr)

	if v, ok := lookup("FORMKEEP_DEBOUNCE"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: FORMKEEP_DEBOUNCE: %w", err)
		}
		c.Timing.Debounce = d
	}
	if v, ok := lookup("FORMKEEP_MEMORY_LIMIT"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: FORMKEEP_MEMORY_LIMIT: %w", err)
		}
		c.Browser.MemoryLimit = n
	}
	if v, ok := lookup("FORMKEEP_WEBHOOK_URL"); ok && v != "" {
		c.Sinks = append(c.Sinks, SinkConfig{Type: "webhook", URL: v})
	}

	var page PageConfig
	str("URL", &page.URL)
	str("FRAME_ID", &page.FrameID)
	str("STORAGE_KEY", &page.StorageKey)
	str("STORE", &page.Store)
	str("RESET_BUTTON", &page.ResetButton)
	if page == (PageConfig{}) {
		return nil
	}
	if len(c.Pages) == 0 {
		c.Pages = append(c.Pages, PageConfig{})
	}
	p := &c.Pages[0]
	if page.URL != "" {
		p.URL = page.URL
	}
	if page.FrameID != "" {
		p.FrameID = page.FrameID
	}
	if page.StorageKey != "" {
		p.StorageKey = page.StorageKey
	}
	if page.Store != "" {
		p.Store = page.Store
	}
	if page.ResetButton != "" {
		p.ResetButton = page.ResetButton
	}
	return nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "formkeep.db"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	c.Timing = c.Timing.WithDefaults()
	for i := range c.Pages {
		p := &c.Pages[i]
		if p.ID == "" {
			if i == 0 {
				p.ID = DefaultPageID
			} else {
				p.ID = fmt.Sprintf("page-%d", i+1)
			}
		}
		if p.FrameID == "" {
			p.FrameID = DefaultFrameID
		}
		if p.StorageKey == "" {
			p.StorageKey = DefaultStorageKey
		}
		if p.Store == "" {
			p.Store = StoreSQLite
		}
		if p.ResetButton == "" {
			p.ResetButton = DefaultResetButton
		}
		p.Store = strings.ToLower(p.Store)
	}
}

// WithDefaults returns t with every unset delay filled in.
func (t TimingConfig) WithDefaults() TimingConfig {
	set := func(d *time.Duration, def time.Duration) {
		if *d <= 0 {
			*d = def
		}
	}
	set(&t.Debounce, 500*time.Millisecond)
	set(&t.RestoreHold, 500*time.Millisecond)
	set(&t.RestoreDelay, 500*time.Millisecond)
	set(&t.ArmDelay, 800*time.Millisecond)
	set(&t.ClickDelay, 100*time.Millisecond)
	set(&t.ReloadDelay, 500*time.Millisecond)
	return t
}

// DefaultTiming returns the timing defaults.
func DefaultTiming() TimingConfig {
	return TimingConfig{}.WithDefaults()
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, p := range c.Pages {
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("config: pages[%d]: url is required", i))
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("config: pages[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
		switch p.Store {
		case StoreSQLite, StoreLocalStorage, StoreMemory:
		default:
			errs = append(errs, fmt.Errorf("config: pages[%d]: unknown store %q", i, p.Store))
		}
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout", "websocket":
		case "webhook":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("config: sinks[%d]: webhook needs url", i))
			}
		default:
			errs = append(errs, fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type))
		}
	}
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		errs = append(errs, fmt.Errorf("config: browser.stealth: unknown mode %q", c.Browser.Stealth))
	}
	return errors.Join(errs...)
}
