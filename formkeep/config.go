package formkeep

import "github.com/hazyhaar/formkeep/formkeep/internal/config"

// Config is the top-level formkeep configuration.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig is one page whose form state is kept.
type PageConfig = config.PageConfig

// TimingConfig holds the session delays.
type TimingConfig = config.TimingConfig

// SinkConfig defines a notification backend.
type SinkConfig = config.SinkConfig

// Store backend names accepted in PageConfig.Store.
const (
	StoreSQLite       = config.StoreSQLite
	StoreLocalStorage = config.StoreLocalStorage
	StoreMemory       = config.StoreMemory
)

// DefaultResetButton is the id of the in-page reset button.
const DefaultResetButton = config.DefaultResetButton

// LoadConfigFile reads a YAML config, applies FORMKEEP_* overrides and
// defaults, and validates the result.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ParseConfig is LoadConfigFile for in-memory YAML. lookup stands in for
// os.LookupEnv; nil disables environment overrides.
func ParseConfig(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	return config.Parse(data, lookup)
}

// LoadDotenv loads .env files into the process environment. Missing files
// are ignored.
func LoadDotenv(paths ...string) error {
	return config.LoadDotenv(paths...)
}
