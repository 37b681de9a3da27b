package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv overrides TextGen.APIKey when set (also read from .env).
const APIKeyEnv = "CYCLECAL_TEXTGEN_API_KEY"

const (
	defaultListen       = "127.0.0.1:8080"
	defaultTimezone     = "Asia/Shanghai"
	defaultDataDir      = "./var/cyclecal"
	defaultRefreshCron  = "0 6 * * *"
	defaultRecentWindow = 6
	defaultProjected    = 3
	defaultReminderHour = 9
	defaultLogLevel     = "info"
)

// TextGenConfig describes the external text prediction endpoint
// (any OpenAI-compatible chat completions API).
type TextGenConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	BaseURL        string `yaml:"base_url" json:"base_url"`
	Model          string `yaml:"model" json:"model"`
	APIKey         string `yaml:"api_key,omitempty" json:"-"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// RemindersConfig selects which forecast points carry calendar alarms.
type RemindersConfig struct {
	Period    bool `yaml:"period" json:"period"`
	Ovulation bool `yaml:"ovulation" json:"ovulation"`
	Fertile   bool `yaml:"fertile" json:"fertile"`
	// Hour is the local hour (0-23) alarms fire at.
	Hour int `yaml:"hour" json:"hour"`
}

// ImportConfig is an ICS feed whose matching events become period records.
type ImportConfig struct {
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone "today" and alarms are evaluated in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataDir holds events.json and the import cache.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a standard 5-field cron schedule for forecast refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// RecentWindow is how many recent cycle gaps feed the weighted average.
	RecentWindow int `yaml:"recent_window" json:"recent_window"`

	// ProjectedCycles is how many cycles the calendar feed shows.
	ProjectedCycles int `yaml:"projected_cycles" json:"projected_cycles"`

	Reminders RemindersConfig `yaml:"reminders" json:"reminders"`

	TextGen TextGenConfig `yaml:"textgen" json:"textgen"`

	// ImportKeywords select which imported ICS events are periods.
	ImportKeywords []string `yaml:"import_keywords" json:"import_keywords"`

	Imports []ImportConfig `yaml:"imports" json:"imports"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          defaultListen,
		Timezone:        defaultTimezone,
		DataDir:         defaultDataDir,
		LogLevel:        defaultLogLevel,
		RefreshCron:     defaultRefreshCron,
		RecentWindow:    defaultRecentWindow,
		ProjectedCycles: defaultProjected,
		Reminders: RemindersConfig{
			Period:    true,
			Ovulation: true,
			Fertile:   true,
			Hour:      defaultReminderHour,
		},
		TextGen: TextGenConfig{
			Enabled:        false,
			BaseURL:        "https://api.deepseek.com/v1",
			Model:          "deepseek-reasoner",
			TimeoutSeconds: 30,
		},
		ImportKeywords: []string{"period", "月经", "经期"},
		Imports:        []ImportConfig{},
	}
}

// Normalize fills in missing or invalid values with defaults so older or
// hand-edited files still load.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		c.RefreshCron = defaultRefreshCron
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = defaultRecentWindow
	}
	if c.ProjectedCycles <= 0 {
		c.ProjectedCycles = defaultProjected
	}
	if c.Reminders.Hour < 0 || c.Reminders.Hour > 23 {
		c.Reminders.Hour = defaultReminderHour
	}
	if c.TextGen.TimeoutSeconds <= 0 {
		c.TextGen.TimeoutSeconds = 30
	}
	if c.ImportKeywords == nil {
		c.ImportKeywords = []string{"period", "月经", "经期"}
	}
	if c.Imports == nil {
		c.Imports = []ImportConfig{}
	}
}

// ApplyEnv overlays environment overrides. Call after loading .env.
func (c *Config) ApplyEnv() {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		c.TextGen.APIKey = key
	}
}

// EventsPath is the event store file under DataDir.
func (c *Config) EventsPath() string {
	return filepath.Join(c.DataDir, "events.json")
}

// ImportCacheDir is the ICS fetch cache under DataDir.
func (c *Config) ImportCacheDir() string {
	return filepath.Join(c.DataDir, "ics-cache")
}

// Load reads the YAML config at path. On first run (no file) it writes
// the defaults with 0600 permissions and returns them.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Caller decides whether an unwritable config dir is fatal.
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

// Save writes cfg to path atomically (temp file + rename, 0600).
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

	tmp, err := os.CreateTemp(dir, ".cyclecal-config-*.tmp")
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

func (c *Config) Save(path string) error {
	return Save(path, c)
}
