package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsbot/internal/config"
	"eventsbot/internal/model"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Upstate Tech Calendar</title>
  <link>https://example.com</link>
  <description>Events</description>
  <item>
    <title>Lunch and Learn</title>
    <link>https://example.com/events/1</link>
    <guid>evt-1</guid>
    <description>&lt;p&gt;Bring a &lt;b&gt;laptop&lt;/b&gt;&lt;/p&gt;</description>
    <pubDate>Thu, 26 Oct 2023 16:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Undated</title>
    <guid>evt-2</guid>
  </item>
</channel>
</rss>`

func TestRSSSource_Events(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	now := time.Date(2023, 10, 25, 0, 0, 0, 0, time.UTC)
	src, err := NewSource(config.FeedConfig{URL: srv.URL, Format: config.FeedFormatRSS, TimeoutSeconds: 1}, func() time.Time { return now })
	require.NoError(t, err)

	events, err := src.Events(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, "Lunch and Learn", ev.Title)
	assert.Equal(t, "Upstate Tech Calendar", ev.Group)
	assert.Equal(t, "Bring a laptop", ev.Description)
	assert.Equal(t, model.StatusUpcoming, ev.Status.Kind)
	assert.True(t, ev.Start.Equal(time.Date(2023, 10, 26, 16, 0, 0, 0, time.UTC)))
}
