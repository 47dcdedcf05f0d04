package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feed formats understood by internal/feed.
const (
	FeedFormatGTC = "gtc"
	FeedFormatICS = "ics"
	FeedFormatRSS = "rss"
)

// FeedConfig describes the upstream event feed.
type FeedConfig struct {
	// URL is the feed endpoint.
	URL string `yaml:"url" json:"url"`
	// Format is one of "gtc" (events API JSON), "ics" or "rss".
	Format string `yaml:"format" json:"format"`
	// Name labels the source in logs; ICS and RSS events use it as their group.
	Name string `yaml:"name" json:"name"`
	// TimeoutSeconds bounds a single fetch.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
	// CacheDir stores the last good body and its ETag/Last-Modified.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// DigestConfig controls how a week is rendered and split into messages.
type DigestConfig struct {
	Title            string `yaml:"title" json:"title"`
	MaxMessageLength int    `yaml:"max_message_length" json:"max_message_length"`
	HeaderReserve    int    `yaml:"header_reserve" json:"header_reserve"`
	TextCap          int    `yaml:"text_cap" json:"text_cap"`
	// LookaheadDays is how far ahead of today the "next week" probe lands.
	LookaheadDays int `yaml:"lookahead_days" json:"lookahead_days"`
}

// SlackConfig holds chat platform credentials.
type SlackConfig struct {
	BotToken      string `yaml:"bot_token" json:"-"`
	SigningSecret string `yaml:"signing_secret" json:"-"`
	// APIURL overrides the Slack Web API base URL (tests, proxies).
	APIURL string `yaml:"api_url,omitempty" json:"api_url,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the /api endpoints.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for Slack callbacks and the API.
	Listen string `yaml:"listen" json:"listen"`

	// DatabasePath is the SQLite file holding channels, messages and cooldowns.
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// Timezone is the IANA timezone used for week boundaries and event times.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// SyncSchedule and PurgeSchedule are cron specs (robfig/cron syntax,
	// including "@every 1h" descriptors).
	SyncSchedule  string `yaml:"sync_schedule" json:"sync_schedule"`
	PurgeSchedule string `yaml:"purge_schedule" json:"purge_schedule"`

	// RetentionDays is the age, measured from a message's week, after which
	// stored messages are purged.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`

	// CooldownMinutes guards the manual /check_api trigger per team domain.
	CooldownMinutes int `yaml:"cooldown_minutes" json:"cooldown_minutes"`

	// MaxParallelChannels bounds concurrent channel reconciliation.
	MaxParallelChannels int `yaml:"max_parallel_channels" json:"max_parallel_channels"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Feed   FeedConfig   `yaml:"feed" json:"feed"`
	Digest DigestConfig `yaml:"digest" json:"digest"`
	Slack  SlackConfig  `yaml:"slack" json:"slack"`

	// BasicAuth, if non-nil, protects /api/* endpoints.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              "0.0.0.0:3000",
		DatabasePath:        "./slack-events-bot.db",
		Timezone:            "America/New_York",
		WeekStart:           "sunday",
		SyncSchedule:        "@every 1h",
		PurgeSchedule:       "@every 24h",
		RetentionDays:       90,
		CooldownMinutes:     15,
		MaxParallelChannels: 4,
		LogLevel:            "info",
		Feed: FeedConfig{
			URL:            "https://events.openupstate.org/api/gtc",
			Format:         FeedFormatGTC,
			Name:           "openupstate",
			TimeoutSeconds: 15,
			CacheDir:       "./var/feed-cache",
		},
		Digest: DigestConfig{
			Title:            "HackGreenville Events",
			MaxMessageLength: 3000,
			HeaderReserve:    61,
			TextCap:          250,
			LookaheadDays:    5,
		},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.DatabasePath == "" {
		c.DatabasePath = d.DatabasePath
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	switch c.WeekStart {
	case "sunday", "monday":
	default:
		// Unknown value; fall back to sunday.
		c.WeekStart = "sunday"
	}
	if c.SyncSchedule == "" {
		c.SyncSchedule = d.SyncSchedule
	}
	if c.PurgeSchedule == "" {
		c.PurgeSchedule = d.PurgeSchedule
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.CooldownMinutes <= 0 {
		c.CooldownMinutes = d.CooldownMinutes
	}
	if c.MaxParallelChannels <= 0 {
		c.MaxParallelChannels = d.MaxParallelChannels
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}

	if c.Feed.URL == "" {
		c.Feed.URL = d.Feed.URL
	}
	switch c.Feed.Format {
	case FeedFormatGTC, FeedFormatICS, FeedFormatRSS:
	default:
		c.Feed.Format = FeedFormatGTC
	}
	if c.Feed.Name == "" {
		c.Feed.Name = d.Feed.Name
	}
	if c.Feed.TimeoutSeconds <= 0 {
		c.Feed.TimeoutSeconds = d.Feed.TimeoutSeconds
	}
	if c.Feed.CacheDir == "" {
		c.Feed.CacheDir = d.Feed.CacheDir
	}

	if c.Digest.Title == "" {
		c.Digest.Title = d.Digest.Title
	}
	if c.Digest.MaxMessageLength <= 0 {
		c.Digest.MaxMessageLength = d.Digest.MaxMessageLength
	}
	if c.Digest.HeaderReserve <= 0 || c.Digest.HeaderReserve >= c.Digest.MaxMessageLength {
		c.Digest.HeaderReserve = d.Digest.HeaderReserve
	}
	if c.Digest.TextCap <= 0 {
		c.Digest.TextCap = d.Digest.TextCap
	}
	if c.Digest.LookaheadDays <= 0 {
		c.Digest.LookaheadDays = d.Digest.LookaheadDays
	}
}

// ApplyEnv overrides file values with the environment variables the bot
// has always honored: BOT_TOKEN, SIGNING_SECRET, TZ, PORT and
// EVENTSBOT_DB_PATH.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Slack.BotToken = v
	}
	if v := os.Getenv("SIGNING_SECRET"); v != "" {
		c.Slack.SigningSecret = v
	}
	if v := os.Getenv("TZ"); v != "" {
		c.Timezone = v
	}
	if v := strings.Trim(os.Getenv("PORT"), `"' `); v != "" {
		host := "0.0.0.0"
		if i := strings.LastIndex(c.Listen, ":"); i > 0 {
			host = c.Listen[:i]
		}
		c.Listen = host + ":" + v
	}
	if v := os.Getenv("EVENTSBOT_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is decoded and normalized.
//
// Environment overrides are applied in both cases.
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
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes the given configuration to path atomically (temp file +
// rename) with 0600 permissions, creating the parent directory if needed.
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

	tmp, err := os.CreateTemp(dir, ".eventsbot-config-*.tmp")
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

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
