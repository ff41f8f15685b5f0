package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

const envPrefix = "VENUECAL_"

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// HorizonConfig is the preview window applied when a request names none.
type HorizonConfig struct {
	// Mode is "count" (first Value instances) or "months" (Value months
	// from the rule start).
	Mode  string `yaml:"mode" json:"mode"`
	Value int    `yaml:"value" json:"value"`
}

// PreviewConfig tunes recurrence expansion.
type PreviewConfig struct {
	// SafetyCap bounds the instances a single expansion may produce.
	SafetyCap      int           `yaml:"safety_cap" json:"safety_cap"`
	DefaultHorizon HorizonConfig `yaml:"default_horizon" json:"default_horizon"`
}

// RateLimitConfig limits API requests per client IP. Zero disables it.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone of the venue (e.g. "Europe/Berlin").
	// Dates are rendered from local midnight in this zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Locale is the BCP 47 tag used for long date formatting.
	Locale string `yaml:"locale" json:"locale"`

	// Database is the SQLite DSN or file path.
	Database string `yaml:"database" json:"database"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Preview PreviewConfig `yaml:"preview" json:"preview"`

	// SweepCron schedules the orphan sweep (e.g. "@hourly"). Empty disables it.
	SweepCron string `yaml:"sweep" json:"sweep"`

	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "UTC",
		Locale:   "en",
		Database: "data/venuecal.db",
		LogLevel: "info",
		Preview: PreviewConfig{
			SafetyCap:      500,
			DefaultHorizon: HorizonConfig{Mode: "months", Value: 3},
		},
		SweepCron: "@hourly",
		RateLimit: RateLimitConfig{RequestsPerMinute: 120},
		BasicAuth: nil,
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
	if c.Locale == "" {
		c.Locale = def.Locale
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = def.LogLevel
	}
	if c.Preview.SafetyCap <= 0 {
		c.Preview.SafetyCap = def.Preview.SafetyCap
	}
	switch h := &c.Preview.DefaultHorizon; strings.ToLower(h.Mode) {
	case "count", "months":
		h.Mode = strings.ToLower(h.Mode)
		if h.Value <= 0 {
			h.Value = def.Preview.DefaultHorizon.Value
		}
	default:
		*h = def.Preview.DefaultHorizon
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		c.RateLimit.RequestsPerMinute = 0
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ApplyEnv overrides fields from VENUECAL_* variables, read through lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("LISTEN", &c.Listen)
	str("TIMEZONE", &c.Timezone)
	str("LOCALE", &c.Locale)
	str("DATABASE", &c.Database)
	str("LOG_LEVEL", &c.LogLevel)
	str("SWEEP", &c.SweepCron)
	if err := num("SAFETY_CAP", &c.Preview.SafetyCap); err != nil {
		return err
	}
	if err := num("RATE_LIMIT", &c.RateLimit.RequestsPerMinute); err != nil {
		return err
	}

	user, _ := lookup(envPrefix + "BASIC_AUTH_USER")
	pass, _ := lookup(envPrefix + "BASIC_AUTH_PASSWORD")
	if user != "" || pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}

	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically,
// with 0600 permissions and a 0700 parent directory.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending config file: %w", err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
