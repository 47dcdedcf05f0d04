package model

import (
	"strings"
	"time"
)

// StatusKind is the normalized lifecycle state of an event.
type StatusKind int

const (
	StatusUnknown StatusKind = iota
	StatusUpcoming
	StatusPast
	StatusCancelled
)

// Status keeps the raw feed value next to its normalized kind so that
// unknown values can still be logged verbatim.
type Status struct {
	Kind StatusKind
	Raw  string
}

// ParseStatus maps a feed status string to a Status.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "upcoming":
		return Status{Kind: StatusUpcoming, Raw: raw}
	case "past":
		return Status{Kind: StatusPast, Raw: raw}
	case "cancelled", "canceled":
		return Status{Kind: StatusCancelled, Raw: raw}
	default:
		return Status{Kind: StatusUnknown, Raw: raw}
	}
}

// StatusFromTime derives upcoming/past for sources that carry no status.
func StatusFromTime(start, now time.Time) Status {
	if start.Before(now) {
		return Status{Kind: StatusPast, Raw: "past"}
	}
	return Status{Kind: StatusUpcoming, Raw: "upcoming"}
}

// Event is one normalized community event. It is rebuilt from the feed
// on every pass and never persisted.
type Event struct {
	ID          string
	Title       string
	Group       string
	Description string
	// Location is empty when the feed has no venue.
	Location string
	Start    time.Time
	Status   Status
	URL      string
}

// StoredMessage is the record of one posted Slack message.
type StoredMessage struct {
	Week      Week
	ChannelID string
	// Position is the 1-based ordinal of the message within its week.
	Position int
	// Timestamp is Slack's message ts, the message's external identity.
	Timestamp string
	// Text is the plain-text fallback as posted; it is the change-detection key.
	Text string
}
