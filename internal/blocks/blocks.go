// Package blocks renders normalized events into Slack message fragments.
//
// Every fragment carries two renderings of the same content: Slack
// blocks for display and a plain-text fallback. The plain text is what
// gets stored and compared between passes, so both renderings must
// apply identical truncation.
package blocks

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/slack-go/slack"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	appLog "eventsbot/internal/log"
	"eventsbot/internal/model"
)

const (
	// DefaultTextCap is the display cap for free-text event fields.
	DefaultTextCap = 250
	// DefaultTitle prefixes headers when no digest title is configured.
	DefaultTitle = "HackGreenville Events"
	// MaxHeaderText is Slack's limit for a header block's plain_text.
	MaxHeaderText = 150
)

const ellipsis = "..."

// Fragment is one renderable unit: an event or a message header.
type Fragment struct {
	Blocks []slack.Block
	Text   string
	// Length is Text's length in code points.
	Length int
}

func newFragment(blocks []slack.Block, text string) Fragment {
	return Fragment{Blocks: blocks, Text: text, Length: utf8.RuneCountInString(text)}
}

// Builder renders events and headers.
type Builder struct {
	// Title prefixes every header, e.g. "HackGreenville Events".
	Title string
	// TextCap truncates titles, descriptions and group names.
	TextCap int
	// Location is the display timezone for event times.
	Location *time.Location
}

// NewBuilder returns a Builder with defaults for zero values.
func NewBuilder(title string, textCap int, loc *time.Location) *Builder {
	if title == "" {
		title = DefaultTitle
	}
	if textCap <= 0 {
		textCap = DefaultTextCap
	}
	if loc == nil {
		loc = time.Local
	}
	return &Builder{Title: title, TextCap: textCap, Location: loc}
}

// Build renders ev if it starts inside [weekStart, weekEnd) and has a
// status the digest knows how to show. The bool is false when the event
// is left out.
func (b *Builder) Build(ev model.Event, weekStart, weekEnd time.Time) (Fragment, bool) {
	if ev.Start.Before(weekStart) || !ev.Start.Before(weekEnd) {
		return Fragment{}, false
	}
	if ev.Status.Kind == model.StatusUnknown {
		appLog.Warn("skipping event with unsupported status", "event_id", ev.ID, "status", ev.Status.Raw)
		return Fragment{}, false
	}

	title := Truncate(ev.Title, b.TextCap)
	description := Truncate(ev.Description, b.TextCap)
	group := Truncate(ev.Group, b.TextCap)
	status := StatusLabel(ev.Status)
	when := ev.Start.In(b.Location).Format("January 2, 2006 03:04 PM MST")

	location := ev.Location
	if location == "" {
		location = "None"
	}
	text := fmt.Sprintf("%s\nDescription: %s\nLink: %s\nStatus: %s\nLocation: %s\nTime: %s\n\n",
		title, description, ev.URL, status, location, when)

	sectionText := description
	if sectionText == "" {
		// Slack rejects empty text objects.
		sectionText = " "
	}
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, "*"+group+"*", false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("<%s|*Link* :link:>", ev.URL), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Status*", false, false),
		slack.NewTextBlockObject(slack.MarkdownType, status, false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Location*", false, false),
		slack.NewTextBlockObject(slack.MarkdownType, LocationLink(ev.Location), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Time*", false, false),
		slack.NewTextBlockObject(slack.PlainTextType, when, false, false),
	}
	blocks := []slack.Block{
		titleBlock(title),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.PlainTextType, sectionText, false, false), fields, nil),
		slack.NewDividerBlock(),
	}

	return newFragment(blocks, text), true
}

// titleBlock renders the event title as a header block, or as a bold
// section when it is too long for one.
func titleBlock(title string) slack.Block {
	if utf8.RuneCountInString(title) <= MaxHeaderText {
		return slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, false, false))
	}
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "*"+title+"*", false, false), nil, nil)
}

// BuildWeek renders every event of the week in feed order.
func (b *Builder) BuildWeek(events []model.Event, week model.Week) []Fragment {
	start, end := week.Start(b.Location), week.End(b.Location)
	out := make([]Fragment, 0, len(events))
	for _, ev := range events {
		if f, ok := b.Build(ev, start, end); ok {
			out = append(out, f)
		}
	}
	return out
}

// Header renders the fragment that opens message index of total.
func (b *Builder) Header(week model.Week, index, total int) Fragment {
	line := fmt.Sprintf("%s for the week of %s - %d of %d", b.Title, week.Label(), index, total)
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, line, false, false)),
		slack.NewDividerBlock(),
	}
	return newFragment(blocks, line+"\n\n===\n\n")
}

// Truncate NFC-normalizes s and cuts it to limit code points, appending
// "..." when anything was removed.
func Truncate(s string, limit int) string {
	s = norm.NFC.String(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + ellipsis
}

// StatusLabel is the human label for a status.
func StatusLabel(s model.Status) string {
	switch s.Kind {
	case model.StatusUpcoming:
		return "Upcoming ✅"
	case model.StatusPast:
		return "Past ✔"
	case model.StatusCancelled:
		return "Cancelled ❌"
	default:
		return cases.Title(language.English).String(s.Raw)
	}
}

// LocationLink renders a Google Maps mrkdwn link, or "No location".
func LocationLink(location string) string {
	if location == "" {
		return "No location"
	}
	q := strings.ReplaceAll(url.QueryEscape(location), "+", "%20")
	return fmt.Sprintf("<https://www.google.com/maps/search/?api=1&query=%s|%s>", q, location)
}
