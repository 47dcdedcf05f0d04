package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Digest.MaxMessageLength)
	assert.Equal(t, 61, cfg.Digest.HeaderReserve)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_NormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "week_start: friday\nfeed:\n  format: xml\n  url: https://example.com/feed\ndigest:\n  header_reserve: 5000\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sunday", cfg.WeekStart)
	assert.Equal(t, FeedFormatGTC, cfg.Feed.Format)
	assert.Equal(t, "https://example.com/feed", cfg.Feed.URL)
	assert.Equal(t, 61, cfg.Digest.HeaderReserve)
	assert.Equal(t, 90, cfg.RetentionDays)
	assert.Equal(t, "@every 1h", cfg.SyncSchedule)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "xoxb-test")
	t.Setenv("SIGNING_SECRET", "shh")
	t.Setenv("PORT", `"8081"`)
	t.Setenv("TZ", "UTC")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 127.0.0.1:3000\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "xoxb-test", cfg.Slack.BotToken)
	assert.Equal(t, "shh", cfg.Slack.SigningSecret)
	assert.Equal(t, "127.0.0.1:8081", cfg.Listen)
	assert.Equal(t, "UTC", cfg.Timezone)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Digest.Title = "Upstate Events"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Upstate Events", loaded.Digest.Title)
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}
