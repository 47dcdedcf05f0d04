package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsbot/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "eventsbot", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"serve"}, {"sync"}, {"purge"},
		{"channels", "add"}, {"channels", "remove"}, {"channels", "list"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad"))))
}

// writeConfig writes a config that keeps all state inside the test's
// temp dir and returns its path.
func writeConfig(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	t.Setenv("EVENTSBOT_DB_PATH", "")
	t.Setenv("TZ", "")
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DatabasePath = filepath.Join(dir, "bot.db")
	cfg.Feed.CacheDir = filepath.Join(dir, "feed-cache")
	if mutate != nil {
		mutate(cfg)
	}
	path := filepath.Join(dir, "eventsbot.yaml")
	require.NoError(t, config.Save(path, cfg))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestChannels(t *testing.T) {
	cfgPath := writeConfig(t, nil)

	out, err := run(t, "-c", cfgPath, "channels", "add", "C1")
	require.NoError(t, err)
	assert.Equal(t, "added C1\n", out)

	_, err = run(t, "-c", cfgPath, "channels", "add", "C1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, "-c", cfgPath, "channels", "add", "C2")
	require.NoError(t, err)

	out, err = run(t, "-c", cfgPath, "--format", "json", "channels", "list")
	require.NoError(t, err)
	var listed []string
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Equal(t, []string{"C1", "C2"}, listed)

	_, err = run(t, "-c", cfgPath, "channels", "remove", "C1")
	require.NoError(t, err)
	out, err = run(t, "-c", cfgPath, "channels", "list")
	require.NoError(t, err)
	assert.Equal(t, "C2\n", out)
}

func TestInvalidFormat(t *testing.T) {
	cfgPath := writeConfig(t, nil)
	_, err := run(t, "-c", cfgPath, "--format", "yaml", "channels", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSync_PostsOnceThenIdles(t *testing.T) {
	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"uuid":"a","event_name":"Hack Night","group_name":"Code For Greenville",
			"description":"Weekly","time":%q,"status":"upcoming","url":"https://example.com/a"}]`, start)
	}))
	defer feedSrv.Close()

	var posts, updates atomic.Int32
	slackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/chat.postMessage":
			n := posts.Add(1)
			fmt.Fprintf(w, `{"ok":true,"channel":"C1","ts":"1700000000.%06d"}`, n)
		case "/api/chat.update":
			updates.Add(1)
			fmt.Fprint(w, `{"ok":true,"channel":"C1","ts":"1","text":""}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer slackSrv.Close()

	cfgPath := writeConfig(t, func(c *config.Config) {
		c.Feed.URL = feedSrv.URL
		c.Slack.BotToken = "xoxb-test"
		c.Slack.APIURL = slackSrv.URL + "/api/"
		c.Timezone = "UTC"
	})

	_, err := run(t, "-c", cfgPath, "channels", "add", "C1")
	require.NoError(t, err)

	out, err := run(t, "-c", cfgPath, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "pass ")
	firstPosts := posts.Load()
	assert.GreaterOrEqual(t, firstPosts, int32(1))

	out, err = run(t, "-c", cfgPath, "sync")
	require.NoError(t, err)
	assert.Equal(t, firstPosts, posts.Load(), "second pass posts nothing new")
	assert.Zero(t, updates.Load())
	assert.Contains(t, out, "0 created, 0 updated")
}
