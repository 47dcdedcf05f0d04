package model

import (
	"fmt"
	"time"
)

// Week identifies a calendar week by the date of its first day,
// formatted as time.DateOnly. Lexical order equals chronological order.
type Week string

// WeekOf returns the week containing t, evaluated in t's location, for
// weeks beginning on firstDay.
func WeekOf(t time.Time, firstDay time.Weekday) Week {
	offset := (int(t.Weekday()) - int(firstDay) + 7) % 7
	d := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())
	return Week(d.Format(time.DateOnly))
}

// ParseWeek validates a "2006-01-02" string.
func ParseWeek(s string) (Week, error) {
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return "", fmt.Errorf("parse week %q: %w", s, err)
	}
	return Week(s), nil
}

// Start returns midnight of the week's first day in loc.
func (w Week) Start(loc *time.Location) time.Time {
	d, err := time.ParseInLocation(time.DateOnly, string(w), loc)
	if err != nil {
		return time.Time{}
	}
	return d
}

// End returns midnight seven days after Start; the window is [Start, End).
func (w Week) End(loc *time.Location) time.Time {
	s := w.Start(loc)
	return time.Date(s.Year(), s.Month(), s.Day()+7, 0, 0, 0, 0, loc)
}

// AddDays shifts the week key by n days.
func (w Week) AddDays(n int) Week {
	s := w.Start(time.UTC)
	return Week(s.AddDate(0, 0, n).Format(time.DateOnly))
}

// Label renders the week for humans, e.g. "October 22".
func (w Week) Label() string {
	return w.Start(time.UTC).Format("January 2")
}

func (w Week) String() string { return string(w) }

// ParseWeekday maps "sunday"/"monday" config values to a weekday.
func ParseWeekday(s string) time.Weekday {
	if s == "monday" {
		return time.Monday
	}
	return time.Sunday
}
