// Package reconcile brings each registered channel's posted messages for
// a week in line with freshly chunked drafts.
//
// A message is identified by (week, channel, position). Positions are
// handled in ascending order within a channel and channels run in
// parallel. A channel whose message count for the week would grow,
// including from zero, after a later week was already posted there is
// left untouched: Slack cannot insert a message above newer ones, so the
// week would render out of order.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"

	"eventsbot/internal/chunk"
	"eventsbot/internal/errs"
	appLog "eventsbot/internal/log"
	"eventsbot/internal/model"
)

// DefaultMaxParallel bounds concurrent channels when none is configured.
const DefaultMaxParallel = 4

// Store is the part of the message store the reconciler needs.
type Store interface {
	ListChannels(ctx context.Context) ([]string, error)
	GetMessages(ctx context.Context, week model.Week) ([]model.StoredMessage, error)
	CreateMessage(ctx context.Context, msg model.StoredMessage) error
	UpdateMessage(ctx context.Context, week model.Week, text, ts, channelID string) error
	HasMessageAfter(ctx context.Context, channelID string, week model.Week) (bool, error)
}

// Gateway posts and edits chat messages.
type Gateway interface {
	Post(ctx context.Context, channelID string, blocks []slack.Block, text string) (string, error)
	Update(ctx context.Context, ts, channelID string, blocks []slack.Block, text string) error
}

type slotKey struct {
	Channel  string
	Position int
}

// Reconciler applies drafts to every registered channel.
type Reconciler struct {
	Store       Store
	Gateway     Gateway
	MaxParallel int
}

func New(store Store, gateway Gateway, maxParallel int) *Reconciler {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	return &Reconciler{Store: store, Gateway: gateway, MaxParallel: maxParallel}
}

// Reconcile posts, edits or leaves alone each draft in each channel.
//
// The returned error joins the channels' I/O failures, each classified
// as transient; a failing channel does not stop the others. Channels
// skipped for spillover are reported in the Report but are not errors.
func (r *Reconciler) Reconcile(ctx context.Context, week model.Week, drafts []chunk.MessageDraft) (Report, error) {
	report := Report{Week: week}

	channels, err := r.Store.ListChannels(ctx)
	if err != nil {
		return report, errs.Transient("store list channels", err)
	}
	stored, err := r.Store.GetMessages(ctx, week)
	if err != nil {
		return report, errs.Transient("store get messages", err)
	}

	index := make(map[slotKey]model.StoredMessage, len(stored))
	counts := make(map[string]int)
	for _, m := range stored {
		index[slotKey{Channel: m.ChannelID, Position: m.Position}] = m
		counts[m.ChannelID]++
	}

	report.Channels = make([]ChannelReport, len(channels))
	var g errgroup.Group
	g.SetLimit(r.MaxParallel)
	for i, channelID := range channels {
		i, channelID := i, channelID
		g.Go(func() error {
			report.Channels[i] = r.reconcileChannel(ctx, week, channelID, drafts, index, counts[channelID])
			return nil
		})
	}
	_ = g.Wait()

	var failures []error
	for _, cr := range report.Channels {
		if cr.Err != nil {
			failures = append(failures, fmt.Errorf("channel %s: %w", cr.ChannelID, cr.Err))
		}
	}
	return report, errors.Join(failures...)
}

func (r *Reconciler) reconcileChannel(
	ctx context.Context,
	week model.Week,
	channelID string,
	drafts []chunk.MessageDraft,
	index map[slotKey]model.StoredMessage,
	oldCount int,
) ChannelReport {
	cr := ChannelReport{ChannelID: channelID, Slots: make([]SlotState, len(drafts))}
	newCount := len(drafts)
	// A channel with nothing stored for the week grows too: a later week
	// already there would sit above it.
	growing := newCount > oldCount
	checked := false

	for i, d := range drafts {
		if err := ctx.Err(); err != nil {
			cr.Err = errs.Transient("reconcile", err)
			return cr
		}

		existing, posted := index[slotKey{Channel: channelID, Position: d.Position}]
		if posted && existing.Text == d.Text {
			appLog.Debug("message unchanged", "week", week, "channel", channelID, "position", d.Position)
			cr.Slots[i] = SlotUnchanged
			continue
		}

		if growing && !checked {
			later, err := r.Store.HasMessageAfter(ctx, channelID, week)
			if err != nil {
				cr.Err = errs.Transient("store has message after", err)
				return cr
			}
			if later {
				cr.Spillover = &errs.SpilloverError{
					Week:      string(week),
					ChannelID: channelID,
					OldCount:  oldCount,
					NewCount:  newCount,
				}
				appLog.Error("cannot add messages to week; a later week is already posted", cr.Spillover,
					"week", week, "channel", channelID, "existing_count", oldCount, "new_count", newCount)
				return cr
			}
			checked = true
		}

		if posted {
			if err := r.update(ctx, week, channelID, existing.Timestamp, d); err != nil {
				cr.Err = err
				return cr
			}
			cr.Slots[i] = SlotUpdated
			continue
		}

		if err := r.create(ctx, week, channelID, d); err != nil {
			cr.Err = err
			return cr
		}
		cr.Slots[i] = SlotCreated
	}
	return cr
}

func (r *Reconciler) update(ctx context.Context, week model.Week, channelID, ts string, d chunk.MessageDraft) error {
	if err := r.Gateway.Update(ctx, ts, channelID, d.Blocks, d.Text); err != nil {
		return errs.Transient("slack update", err)
	}
	if err := r.Store.UpdateMessage(ctx, week, d.Text, ts, channelID); err != nil {
		return errs.Transient("store update message", err)
	}
	appLog.Info("updated message", "week", week, "channel", channelID, "position", d.Position, "ts", ts)
	return nil
}

func (r *Reconciler) create(ctx context.Context, week model.Week, channelID string, d chunk.MessageDraft) error {
	ts, err := r.Gateway.Post(ctx, channelID, d.Blocks, d.Text)
	if err != nil {
		return errs.Transient("slack post", err)
	}
	msg := model.StoredMessage{
		Week:      week,
		ChannelID: channelID,
		Position:  d.Position,
		Timestamp: ts,
		Text:      d.Text,
	}
	if err := r.Store.CreateMessage(ctx, msg); err != nil {
		// The message is live in Slack but unrecorded; the next pass
		// will post it again at this position.
		appLog.Error("posted message could not be recorded", err,
			"week", week, "channel", channelID, "position", d.Position, "ts", ts)
		return errs.Transient("store create message", err)
	}
	appLog.Info("posted message", "week", week, "channel", channelID, "position", d.Position, "ts", ts)
	return nil
}
