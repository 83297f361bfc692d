package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// ProvidersConfig selects the concrete implementation for each external
// collaborator. Unknown values fall back to the mock/offline variants.
type ProvidersConfig struct {
	// Calendar: "mock" or "ics".
	Calendar string `yaml:"calendar" json:"calendar"`
	// Travel: "mock" or "ns".
	Travel string `yaml:"travel" json:"travel"`
	// Reasoning: "rules" or "llm".
	Reasoning string `yaml:"reasoning" json:"reasoning"`
	// Notifications: "inapp" or "log".
	Notifications string `yaml:"notifications" json:"notifications"`
}

// QueryConfig is the initial travel query for the session.
type QueryConfig struct {
	From        string `yaml:"from" json:"from"`
	To          string `yaml:"to" json:"to"`
	Station     string `yaml:"station" json:"station"`
	DepartAfter string `yaml:"depart_after,omitempty" json:"depart_after,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the control API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for wall-clock computations
	// (e.g. "Europe/Amsterdam").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WatchCron is a cron-style schedule string (e.g. "*/5 * * * *") that
	// drives the recurring calendar check. An immediate check always runs
	// at startup regardless of this schedule.
	WatchCron string `yaml:"watch_cron" json:"watch_cron"`

	// Providers selects concrete collaborator implementations.
	Providers ProvidersConfig `yaml:"providers" json:"providers"`

	// ProxyBaseURL is the base URL of the railproxy service (NS API +
	// reasoning backend).
	ProxyBaseURL string `yaml:"proxy_base_url" json:"proxy_base_url"`

	// ICS is the list of subscribed ICS calendar sources (calendar: "ics").
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// Query is the initial travel query.
	Query QueryConfig `yaml:"query" json:"query"`

	// AlertDBPath is the sqlite file recording alert history.
	AlertDBPath string `yaml:"alert_db_path" json:"alert_db_path"`

	// CacheDir is the base directory for the ICS fetch cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8080",
		Timezone:  "Europe/Amsterdam",
		WatchCron: "*/5 * * * *",
		Providers: ProvidersConfig{
			Calendar:      "mock",
			Travel:        "mock",
			Reasoning:     "rules",
			Notifications: "inapp",
		},
		ProxyBaseURL: "http://127.0.0.1:3001",
		ICS:          []ICSConfig{},
		Query: QueryConfig{
			From:    "Eindhoven",
			To:      "Utrecht Centraal",
			Station: "EHV",
		},
		AlertDBPath: "./var/alerts.db",
		CacheDir:    "./var/ics-cache",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.WatchCron == "" {
		c.WatchCron = def.WatchCron
	}

	switch c.Providers.Calendar {
	case "mock", "ics":
	default:
		c.Providers.Calendar = "mock"
	}
	switch c.Providers.Travel {
	case "mock", "ns":
	default:
		c.Providers.Travel = "mock"
	}
	switch c.Providers.Reasoning {
	case "rules", "llm":
	default:
		c.Providers.Reasoning = "rules"
	}
	switch c.Providers.Notifications {
	case "inapp", "log":
	default:
		c.Providers.Notifications = "inapp"
	}

	if c.ProxyBaseURL == "" {
		c.ProxyBaseURL = def.ProxyBaseURL
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.Query.From == "" {
		c.Query.From = def.Query.From
	}
	if c.Query.To == "" {
		c.Query.To = def.Query.To
	}
	if c.Query.Station == "" {
		c.Query.Station = def.Query.Station
	}
	if c.AlertDBPath == "" {
		c.AlertDBPath = def.AlertDBPath
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create parent directory if needed, write a
//     default config with 0600 perms, and return the default config.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".railwatch-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
