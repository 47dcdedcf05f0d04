package feed

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"eventsbot/internal/config"
	"eventsbot/internal/errs"
	appLog "eventsbot/internal/log"
	"eventsbot/internal/model"
)

// RSSSource reads RSS, Atom or JSON Feed documents where each item is an
// event and its published date is the event start.
type RSSSource struct {
	URL     string
	Name    string
	Fetcher *Fetcher
	Now     func() time.Time
}

var htmlTag = regexp.MustCompile("<[^>]*>")

func (s *RSSSource) Events(ctx context.Context, _, _ time.Time) ([]model.Event, error) {
	res, err := s.Fetcher.Fetch(ctx, s.URL)
	if err != nil {
		return nil, errs.Transient("feed fetch", err)
	}
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(res.Body))
	if err != nil {
		return nil, errs.Transient("feed decode", err)
	}

	group := s.Name
	if parsed.Title != "" {
		group = parsed.Title
	}

	now := s.Now()
	events := make([]model.Event, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		ev, err := itemToEvent(item, group, now)
		if err != nil {
			logDropped(err)
			continue
		}
		events = append(events, ev)
	}
	appLog.Info("feed events normalized", "format", config.FeedFormatRSS, "items", len(parsed.Items), "events", len(events), "from_cache", res.FromCache)
	return events, nil
}

func itemToEvent(item *gofeed.Item, group string, now time.Time) (model.Event, error) {
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	if id == "" {
		return model.Event{}, &errs.MalformedEventError{Reason: "item has neither guid nor link"}
	}
	if strings.TrimSpace(item.Title) == "" {
		return model.Event{}, &errs.MalformedEventError{EventID: id, Reason: "item has no title"}
	}
	start := item.PublishedParsed
	if start == nil {
		start = item.UpdatedParsed
	}
	if start == nil {
		return model.Event{}, &errs.MalformedEventError{EventID: id, Reason: "item has no date"}
	}

	if len(item.Authors) > 0 && item.Authors[0] != nil && item.Authors[0].Name != "" {
		group = item.Authors[0].Name
	}

	return model.Event{
		ID:          id,
		Title:       item.Title,
		Group:       group,
		Description: strings.TrimSpace(htmlTag.ReplaceAllString(item.Description, "")),
		Start:       *start,
		Status:      model.StatusFromTime(*start, now),
		URL:         item.Link,
	}, nil
}
