package digest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsbot/internal/blocks"
	"eventsbot/internal/chunk"
	"eventsbot/internal/errs"
	"eventsbot/internal/model"
	"eventsbot/internal/reconcile"
)

type staticSource struct {
	events []model.Event
	err    error
}

func (s staticSource) Events(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	return s.events, s.err
}

type recordingReconciler struct {
	mu     sync.Mutex
	weeks  []model.Week
	drafts map[model.Week][]chunk.MessageDraft
	failOn model.Week
}

func (r *recordingReconciler) Reconcile(ctx context.Context, week model.Week, drafts []chunk.MessageDraft) (reconcile.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drafts == nil {
		r.drafts = map[model.Week][]chunk.MessageDraft{}
	}
	r.weeks = append(r.weeks, week)
	r.drafts[week] = drafts
	if week == r.failOn {
		return reconcile.Report{Week: week}, errs.Transient("slack post", errors.New("ratelimited"))
	}
	slots := make([]reconcile.SlotState, len(drafts))
	for i := range slots {
		slots[i] = reconcile.SlotCreated
	}
	return reconcile.Report{Week: week, Channels: []reconcile.ChannelReport{{ChannelID: "C1", Slots: slots}}}, nil
}

func event(id string, start time.Time) model.Event {
	return model.Event{
		ID:     id,
		Title:  "Event " + id,
		Group:  "Group",
		Start:  start,
		Status: model.ParseStatus("upcoming"),
		URL:    "https://example.com/" + id,
	}
}

func newTestService(src staticSource, rec Reconciler, now time.Time) *Service {
	b := blocks.NewBuilder("HackGreenville Events", 0, time.UTC)
	return &Service{
		Source:        src,
		Builder:       b,
		Chunker:       chunk.New(0, 0, b.Header),
		Reconciler:    rec,
		Location:      time.UTC,
		WeekStart:     time.Sunday,
		LookaheadDays: 5,
		Now:           func() time.Time { return now },
	}
}

func TestWeeks(t *testing.T) {
	s := newTestService(staticSource{}, nil, time.Time{})

	thursday := time.Date(2023, 10, 26, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, []model.Week{"2023-10-22", "2023-10-29"}, s.Weeks(thursday))

	sunday := time.Date(2023, 10, 22, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, []model.Week{"2023-10-22"}, s.Weeks(sunday), "lookahead inside the same week is deduplicated")
}

func TestRunOnce_ReconcilesBothWeeks(t *testing.T) {
	now := time.Date(2023, 10, 26, 9, 0, 0, 0, time.UTC)
	src := staticSource{events: []model.Event{
		event("a", time.Date(2023, 10, 24, 22, 30, 0, 0, time.UTC)),
		event("b", time.Date(2023, 10, 31, 22, 30, 0, 0, time.UTC)),
		event("c", time.Date(2023, 10, 25, 18, 0, 0, 0, time.UTC)),
		event("far", time.Date(2023, 12, 1, 18, 0, 0, 0, time.UTC)),
	}}
	rec := &recordingReconciler{}

	summary, err := newTestService(src, rec, now).RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, summary.PassID)

	require.Equal(t, []model.Week{"2023-10-22", "2023-10-29"}, rec.weeks)

	current := rec.drafts["2023-10-22"]
	require.Len(t, current, 1)
	assert.True(t, strings.HasPrefix(current[0].Text, "HackGreenville Events for the week of October 22 - 1 of 1\n"))
	assert.Contains(t, current[0].Text, "Event a\n")
	assert.Contains(t, current[0].Text, "Event c\n")
	assert.Less(t, strings.Index(current[0].Text, "Event a"), strings.Index(current[0].Text, "Event c"), "feed order is kept")
	assert.NotContains(t, current[0].Text, "Event b")

	next := rec.drafts["2023-10-29"]
	require.Len(t, next, 1)
	assert.Contains(t, next[0].Text, "Event b\n")

	require.Len(t, summary.Weeks, 2)
	assert.Equal(t, 2, summary.Weeks[0].Events)
	assert.Equal(t, 1, summary.Weeks[0].Created)
	assert.Equal(t, 1, summary.Weeks[1].Events)
}

func TestRunOnce_EmptyWeekStillPostsHeader(t *testing.T) {
	now := time.Date(2023, 10, 22, 9, 0, 0, 0, time.UTC)
	rec := &recordingReconciler{}

	_, err := newTestService(staticSource{}, rec, now).RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.drafts["2023-10-22"], 1)
	assert.Equal(t, "HackGreenville Events for the week of October 22 - 1 of 1\n\n===\n\n", rec.drafts["2023-10-22"][0].Text)
}

func TestRunOnce_FeedFailureSkipsReconcile(t *testing.T) {
	now := time.Date(2023, 10, 26, 9, 0, 0, 0, time.UTC)
	rec := &recordingReconciler{}
	src := staticSource{err: errs.Transient("feed fetch", errors.New("timeout"))}

	_, err := newTestService(src, rec, now).RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.CodeTransientIO, errs.Classify(err))
	assert.Empty(t, rec.weeks)
}

func TestRunOnce_WeekFailureStopsLaterWeeks(t *testing.T) {
	now := time.Date(2023, 10, 26, 9, 0, 0, 0, time.UTC)
	rec := &recordingReconciler{failOn: "2023-10-22"}

	summary, err := newTestService(staticSource{}, rec, now).RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
	assert.Equal(t, []model.Week{"2023-10-22"}, rec.weeks, "next week waits until this week succeeds")
	assert.Len(t, summary.Weeks, 1)
}

func TestRunOnce_NextWeekFailureKeepsThisWeek(t *testing.T) {
	now := time.Date(2023, 10, 26, 9, 0, 0, 0, time.UTC)
	rec := &recordingReconciler{failOn: "2023-10-29"}

	summary, err := newTestService(staticSource{}, rec, now).RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, []model.Week{"2023-10-22", "2023-10-29"}, rec.weeks)
	assert.Len(t, summary.Weeks, 2)
}

type countingDeleter struct {
	days int
	err  error
}

func (d *countingDeleter) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	d.days = days
	return 3, d.err
}

func TestPurger(t *testing.T) {
	d := &countingDeleter{}
	require.NoError(t, (&Purger{Store: d, RetentionDays: 90}).RunOnce(context.Background()))
	assert.Equal(t, 90, d.days)

	d.err = errors.New("database is locked")
	err := (&Purger{Store: d, RetentionDays: 90}).RunOnce(context.Background())
	assert.Equal(t, errs.CodeTransientIO, errs.Classify(err))
}
