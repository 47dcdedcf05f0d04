// Package digest runs synchronization passes: fetch the feed, render and
// chunk each target week, and reconcile the result into every channel.
package digest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventsbot/internal/blocks"
	"eventsbot/internal/chunk"
	"eventsbot/internal/errs"
	"eventsbot/internal/feed"
	appLog "eventsbot/internal/log"
	"eventsbot/internal/model"
	"eventsbot/internal/reconcile"
)

// Reconciler applies a week's drafts to the channels.
type Reconciler interface {
	Reconcile(ctx context.Context, week model.Week, drafts []chunk.MessageDraft) (reconcile.Report, error)
}

// Service runs passes. Passes are serialized: a manual trigger that
// arrives during a scheduled pass waits for it.
type Service struct {
	Source     feed.Source
	Builder    *blocks.Builder
	Chunker    *chunk.Chunker
	Reconciler Reconciler

	Location  *time.Location
	WeekStart time.Weekday
	// LookaheadDays places the second probe so that next week's digest
	// appears a few days early.
	LookaheadDays int
	Now           func() time.Time

	mu sync.Mutex
}

// WeekSummary is what one pass did to one week.
type WeekSummary struct {
	Week           model.Week
	Events         int
	MessagesNeeded int
	Drafts         int
	Created        int
	Updated        int
	Unchanged      int
	Spillovers     []*errs.SpilloverError
}

// Summary describes a completed pass.
type Summary struct {
	PassID string
	Weeks  []WeekSummary
}

// Weeks returns the distinct weeks a pass at now covers: the current
// week and the week LookaheadDays ahead.
func (s *Service) Weeks(now time.Time) []model.Week {
	local := now.In(s.Location)
	current := model.WeekOf(local, s.WeekStart)
	ahead := model.WeekOf(local.AddDate(0, 0, s.LookaheadDays), s.WeekStart)
	if ahead == current {
		return []model.Week{current}
	}
	return []model.Week{current, ahead}
}

// RunOnce performs one synchronization pass. Weeks run in chronological
// order and a failed week ends the pass, so a later week is never posted
// ahead of an earlier one that still has to go out.
func (s *Service) RunOnce(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	passID := newPassID()
	summary := Summary{PassID: passID}
	now := s.now()
	weeks := s.Weeks(now)

	from := weeks[0].Start(s.Location)
	to := weeks[len(weeks)-1].End(s.Location)
	appLog.Info("sync pass started", "pass_id", passID, "weeks", len(weeks), "from", from, "to", to)

	events, err := s.Source.Events(ctx, from, to)
	if err != nil {
		return summary, fmt.Errorf("pass %s: %w", passID, err)
	}

	for i, week := range weeks {
		ws, err := s.runWeek(ctx, passID, week, events)
		summary.Weeks = append(summary.Weeks, ws)
		if err != nil {
			appLog.Warn("sync pass stopped", "pass_id", passID, "week", week, "skipped_weeks", len(weeks)-i-1, "err", err)
			return summary, fmt.Errorf("week %s: %w", week, err)
		}
	}

	appLog.Info("sync pass finished", "pass_id", passID)
	return summary, nil
}

func (s *Service) runWeek(ctx context.Context, passID string, week model.Week, events []model.Event) (WeekSummary, error) {
	frags := s.Builder.BuildWeek(events, week)
	res := s.Chunker.Chunk(frags, week)
	if res.Mismatch() {
		appLog.Warn("message count differs from header total",
			"pass_id", passID, "week", week, "drafts", len(res.Drafts), "header_total", res.MessagesNeeded)
	}

	ws := WeekSummary{
		Week:           week,
		Events:         len(frags),
		MessagesNeeded: res.MessagesNeeded,
		Drafts:         len(res.Drafts),
	}

	report, err := s.Reconciler.Reconcile(ctx, week, res.Drafts)
	ws.Created, ws.Updated, ws.Unchanged = report.Counts()
	ws.Spillovers = report.Spillovers()

	appLog.Info("week reconciled", "pass_id", passID, "week", week, "events", ws.Events,
		"messages", ws.Drafts, "created", ws.Created, "updated", ws.Updated,
		"unchanged", ws.Unchanged, "spillovers", len(ws.Spillovers))
	return ws, err
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func newPassID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
