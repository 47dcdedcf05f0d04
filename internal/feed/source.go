package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventsbot/internal/config"
	"eventsbot/internal/errs"
	appLog "eventsbot/internal/log"
	"eventsbot/internal/model"
)

// Source produces the normalized events of the configured feed. from and
// to bound recurrence expansion for formats that have it; callers still
// filter each event against the week they render.
type Source interface {
	Events(ctx context.Context, from, to time.Time) ([]model.Event, error)
}

// NewSource builds the Source for cfg.Format. now is used by formats that
// carry no explicit status.
func NewSource(cfg config.FeedConfig, now func() time.Time) (Source, error) {
	if now == nil {
		now = time.Now
	}
	fetcher := NewFetcher(cfg.CacheDir, time.Duration(cfg.TimeoutSeconds)*time.Second)
	switch cfg.Format {
	case config.FeedFormatGTC, "":
		return &GTCSource{URL: cfg.URL, Fetcher: fetcher}, nil
	case config.FeedFormatICS:
		return &ICSSource{URL: cfg.URL, Name: cfg.Name, Fetcher: fetcher, Now: now}, nil
	case config.FeedFormatRSS:
		return &RSSSource{URL: cfg.URL, Name: cfg.Name, Fetcher: fetcher, Now: now}, nil
	default:
		return nil, fmt.Errorf("unknown feed format %q", cfg.Format)
	}
}

// GTCSource reads the events API JSON array.
type GTCSource struct {
	URL     string
	Fetcher *Fetcher
}

// Events fetches and normalizes the feed. Malformed records are logged
// and dropped; the feed order is kept.
func (s *GTCSource) Events(ctx context.Context, _, _ time.Time) ([]model.Event, error) {
	res, err := s.Fetcher.Fetch(ctx, s.URL)
	if err != nil {
		return nil, errs.Transient("feed fetch", err)
	}
	raws, err := DecodeRawEvents(res.Body)
	if err != nil {
		return nil, errs.Transient("feed decode", err)
	}

	events := make([]model.Event, 0, len(raws))
	for _, raw := range raws {
		ev, err := Normalize(raw)
		if err != nil {
			logDropped(err)
			continue
		}
		events = append(events, ev)
	}
	appLog.Info("feed events normalized", "format", config.FeedFormatGTC, "records", len(raws), "events", len(events), "from_cache", res.FromCache)
	return events, nil
}

func logDropped(err error) {
	var malformed *errs.MalformedEventError
	if errors.As(err, &malformed) {
		appLog.Warn("dropping malformed event", "event_id", malformed.EventID, "reason", malformed.Reason)
		return
	}
	appLog.Error("dropping event", err)
}
