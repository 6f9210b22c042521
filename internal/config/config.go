// Package config loads the YAML configuration file and applies environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type BasicAuthConfig struct {
	Username string `yaml:"username"`
	// PasswordHash is a bcrypt hash.
	PasswordHash string `yaml:"password_hash"`
}

type GmailConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url,omitempty"`
	TokenFile    string `yaml:"token_file"`
	User         string `yaml:"user"`
	BaseURL      string `yaml:"base_url,omitempty"`
}

type CalendarConfig struct {
	// Backend is "sqlite" (local store) or "google".
	Backend    string `yaml:"backend"`
	CalendarID string `yaml:"google_calendar_id,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
}

type APIKeyConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type Config struct {
	Listen       string `yaml:"listen"`
	Timezone     string `yaml:"timezone"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	DatabasePath string `yaml:"database_path"`
	// Schedule is a five-field cron expression; empty disables periodic sync.
	Schedule string `yaml:"schedule"`

	Gmail     GmailConfig    `yaml:"gmail"`
	Calendar  CalendarConfig `yaml:"calendar"`
	TMDB      APIKeyConfig   `yaml:"tmdb"`
	Geocoding APIKeyConfig   `yaml:"geocoding"`

	// Vendors limits which chains are synced; empty means all.
	Vendors            []string `yaml:"vendors"`
	LinkSourceMessages bool     `yaml:"link_source_messages"`
	RemoveCancelled    bool     `yaml:"remove_cancelled"`

	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "Europe/London",
		LogLevel:     "info",
		LogFormat:    "text",
		DatabasePath: "cinesync.db",
		Schedule:     "*/30 * * * *",
		Gmail: GmailConfig{
			TokenFile: "token.json",
			User:      "me",
		},
		Calendar: CalendarConfig{
			Backend:    "sqlite",
			CalendarID: "primary",
		},
		Vendors:            []string{"cineworld", "picturehouse"},
		LinkSourceMessages: true,
	}
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		c.LogFormat = d.LogFormat
	}
	if c.DatabasePath == "" {
		c.DatabasePath = d.DatabasePath
	}
	if c.Gmail.TokenFile == "" {
		c.Gmail.TokenFile = d.Gmail.TokenFile
	}
	if c.Gmail.User == "" {
		c.Gmail.User = d.Gmail.User
	}
	c.Calendar.Backend = strings.ToLower(strings.TrimSpace(c.Calendar.Backend))
	if c.Calendar.Backend == "" {
		c.Calendar.Backend = d.Calendar.Backend
	}
	if c.Calendar.CalendarID == "" {
		c.Calendar.CalendarID = d.Calendar.CalendarID
	}
	if c.Vendors == nil {
		c.Vendors = d.Vendors
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	switch c.Calendar.Backend {
	case "sqlite", "google":
	default:
		return fmt.Errorf("calendar backend %q: want sqlite or google", c.Calendar.Backend)
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.PasswordHash == "") {
		return errors.New("basic_auth needs both username and password_hash")
	}
	return nil
}

// Location returns the configured time zone, or UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ApplyEnv overrides secrets and paths from CINESYNC_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.DatabasePath, "CINESYNC_DB_PATH")
	set(&c.LogLevel, "CINESYNC_LOG_LEVEL")
	set(&c.Listen, "CINESYNC_LISTEN")
	set(&c.TMDB.APIKey, "CINESYNC_TMDB_API_KEY")
	set(&c.Geocoding.APIKey, "CINESYNC_GEOCODING_API_KEY")
	set(&c.Gmail.ClientSecret, "CINESYNC_GMAIL_CLIENT_SECRET")
}

// Load reads path. A missing file is created with defaults (mode 0600)
// and the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg atomically with 0600 permissions.
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
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cinesync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
