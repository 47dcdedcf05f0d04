package cli

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"eventsbot/internal/blocks"
	"eventsbot/internal/chunk"
	"eventsbot/internal/config"
	"eventsbot/internal/digest"
	"eventsbot/internal/feed"
	"eventsbot/internal/model"
	"eventsbot/internal/reconcile"
	"eventsbot/internal/slackgw"
	"eventsbot/internal/store"
)

// app is the wired object graph shared by serve, sync and purge.
type app struct {
	cfg    *config.Config
	loc    *time.Location
	store  *store.Store
	slack  *slackgw.Client
	digest *digest.Service
	purger *digest.Purger
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database "+cfg.DatabasePath, err)
	}
	return st, nil
}

func newApp(cfg *config.Config) (*app, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("load timezone %q", cfg.Timezone), err)
	}
	src, err := feed.NewSource(cfg.Feed, nil)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure feed", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	gw := slackgw.New(cfg.Slack.BotToken, cfg.Slack.APIURL)
	builder := blocks.NewBuilder(cfg.Digest.Title, cfg.Digest.TextCap, loc)

	return &app{
		cfg:   cfg,
		loc:   loc,
		store: st,
		slack: gw,
		digest: &digest.Service{
			Source:        src,
			Builder:       builder,
			Chunker:       chunk.New(cfg.Digest.MaxMessageLength, cfg.Digest.HeaderReserve, builder.Header),
			Reconciler:    reconcile.New(st, gw, cfg.MaxParallelChannels),
			Location:      loc,
			WeekStart:     model.ParseWeekday(cfg.WeekStart),
			LookaheadDays: cfg.Digest.LookaheadDays,
		},
		purger: &digest.Purger{Store: st, RetentionDays: cfg.RetentionDays},
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
