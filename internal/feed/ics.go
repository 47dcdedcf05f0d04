package feed

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"eventsbot/internal/config"
	"eventsbot/internal/errs"
	appLog "eventsbot/internal/log"
	"eventsbot/internal/model"
)

// maxOccurrencesPerEvent caps RRULE expansion inside one window.
const maxOccurrencesPerEvent = 500

// ICSSource reads an iCalendar feed. Recurring events are expanded into
// one Event per occurrence inside the requested window.
type ICSSource struct {
	URL     string
	Name    string
	Fetcher *Fetcher
	Now     func() time.Time
}

// icsEvent is a VEVENT before recurrence expansion.
type icsEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	URL         string
	Status      string
	Start       time.Time
	RawRRule    string
	ExDates     []time.Time
	Recurrence  *time.Time // RECURRENCE-ID, set on overrides
}

func (s *ICSSource) Events(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	res, err := s.Fetcher.Fetch(ctx, s.URL)
	if err != nil {
		return nil, errs.Transient("feed fetch", err)
	}
	parsed, calName, err := parseICS(res.Body)
	if err != nil {
		return nil, errs.Transient("feed decode", err)
	}

	group := s.Name
	if calName != "" {
		group = calName
	}
	events := expandICS(parsed, group, from, to, s.Now())
	appLog.Info("feed events normalized", "format", config.FeedFormatICS, "vevents", len(parsed), "events", len(events), "from_cache", res.FromCache)
	return events, nil
}

// parseICS decodes the calendar; VEVENTs that cannot be read are logged
// and skipped.
func parseICS(body []byte) ([]icsEvent, string, error) {
	if len(body) == 0 {
		return nil, "", errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}

	calName := ""
	for _, p := range cal.CalendarProperties {
		if p.IANAToken == string(ical.PropertyXWRCalName) {
			calName = p.Value
		}
	}

	out := make([]icsEvent, 0)
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			logDropped(err)
			continue
		}
		out = append(out, ev)
	}
	return out, calName, nil
}

func parseVEvent(ve *ical.VEvent) (icsEvent, error) {
	var out icsEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, &errs.MalformedEventError{Reason: "VEVENT missing UID"}
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if out.Summary == "" {
		return out, &errs.MalformedEventError{EventID: out.UID, Reason: "VEVENT missing SUMMARY"}
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		out.URL = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Status = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, &errs.MalformedEventError{EventID: out.UID, Reason: "DTSTART: " + err.Error()}
	}
	out.Start = start

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, start.Location()); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseICSTime(p.Value, start.Location()); err == nil {
			out.Recurrence = &t
		}
	}
	return out, nil
}

// expandICS turns parsed VEVENTs into Events inside [from, to), applying
// RRULE, EXDATE and RECURRENCE-ID overrides. Output is ordered by start.
func expandICS(parsed []icsEvent, group string, from, to, now time.Time) []model.Event {
	overrides := make(map[string][]icsEvent)
	bases := make([]icsEvent, 0, len(parsed))
	for _, ev := range parsed {
		if ev.Recurrence != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	out := make([]model.Event, 0)
	for _, base := range bases {
		for _, occ := range occurrences(base, from, to) {
			ev := base
			if o, ok := findOverride(overrides[base.UID], occ); ok {
				ev = o
				occ = o.Start
			}
			if occ.Before(from) || !occ.Before(to) {
				continue
			}
			out = append(out, toEvent(ev, occ, group, now))
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func occurrences(ev icsEvent, from, to time.Time) []time.Time {
	if ev.RawRRule == "" {
		return []time.Time{ev.Start}
	}
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return []time.Time{ev.Start}
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	times := set.Between(from.In(ev.Start.Location()), to.In(ev.Start.Location()), true)
	if len(times) > maxOccurrencesPerEvent {
		appLog.Warn("ics: truncating occurrences", "uid", ev.UID, "cap", maxOccurrencesPerEvent)
		times = times[:maxOccurrencesPerEvent]
	}
	return times
}

func findOverride(overrides []icsEvent, occ time.Time) (icsEvent, bool) {
	for _, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(occ) {
			return o, true
		}
	}
	return icsEvent{}, false
}

func toEvent(ev icsEvent, start time.Time, group string, now time.Time) model.Event {
	status := model.StatusFromTime(start, now)
	if strings.EqualFold(ev.Status, "CANCELLED") {
		status = model.Status{Kind: model.StatusCancelled, Raw: ev.Status}
	}
	return model.Event{
		// Occurrences of one UID share text but not identity.
		ID:          ev.UID + "@" + start.UTC().Format("20060102T150405Z"),
		Title:       ev.Summary,
		Group:       group,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       start,
		Status:      status,
		URL:         ev.URL,
	}
}

// parseICSTime reads the basic DATE / DATE-TIME forms used by EXDATE and
// RECURRENCE-ID; floating values take loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
