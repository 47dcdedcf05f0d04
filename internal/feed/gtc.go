package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"eventsbot/internal/errs"
	"eventsbot/internal/model"
)

// RawEvent is one record of the events API ("gtc" format).
type RawEvent struct {
	UUID        string `json:"uuid"`
	EventName   string `json:"event_name"`
	GroupName   string `json:"group_name"`
	Description string `json:"description"`
	Venue       *Venue `json:"venue"`
	Time        string `json:"time"`
	URL         string `json:"url"`
	Status      string `json:"status"`
}

// Venue is the optional location sub-object of a RawEvent.
type Venue struct {
	Name    *string    `json:"name"`
	Address *string    `json:"address"`
	City    *string    `json:"city"`
	State   *string    `json:"state"`
	Zip     *string    `json:"zip"`
	Lat     flexString `json:"lat"`
	Lon     flexString `json:"lon"`
}

// flexString accepts a JSON string, number or null. The API has shipped
// coordinates as both.
type flexString struct {
	Value string
	Valid bool
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = flexString{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString{Value: s, Valid: s != ""}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("coordinate: %w", err)
	}
	*f = flexString{Value: n.String(), Valid: true}
	return nil
}

// DecodeRawEvents parses the events API payload.
func DecodeRawEvents(body []byte) ([]RawEvent, error) {
	var raws []RawEvent
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode events payload: %w", err)
	}
	return raws, nil
}

// Normalize turns one raw record into an Event. Records without an id,
// a name or a parsable time are rejected with a MalformedEventError.
// Unknown status strings are kept as StatusUnknown for the renderer to
// decide on.
func Normalize(raw RawEvent) (model.Event, error) {
	if strings.TrimSpace(raw.UUID) == "" {
		return model.Event{}, &errs.MalformedEventError{Reason: "missing uuid"}
	}
	if strings.TrimSpace(raw.EventName) == "" {
		return model.Event{}, &errs.MalformedEventError{EventID: raw.UUID, Reason: "missing event_name"}
	}
	start, err := parseTime(raw.Time)
	if err != nil {
		return model.Event{}, &errs.MalformedEventError{EventID: raw.UUID, Reason: err.Error()}
	}

	return model.Event{
		ID:          raw.UUID,
		Title:       raw.EventName,
		Group:       raw.GroupName,
		Description: raw.Description,
		Location:    ParseLocation(raw.Venue),
		Start:       start,
		Status:      model.ParseStatus(raw.Status),
		URL:         raw.URL,
	}, nil
}

// ParseLocation renders a venue as a single line:
//   - full address when name, address, city, state and zip are all set
//   - "lat/long: <lat>, <lon>" when the address is incomplete but coordinates exist
//   - the venue name otherwise
//
// A nil venue yields "".
func ParseLocation(v *Venue) string {
	if v == nil {
		return ""
	}
	if v.Name != nil && v.Address != nil && v.City != nil && v.State != nil && v.Zip != nil {
		return fmt.Sprintf("%s at %s %s, %s %s", *v.Name, *v.Address, *v.City, *v.State, *v.Zip)
	}
	if v.Lat.Valid {
		return fmt.Sprintf("lat/long: %s, %s", v.Lat.Value, v.Lon.Value)
	}
	if v.Name != nil {
		return *v.Name
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000000Z07:00",
	"2006-01-02 15:04:05Z07:00",
}

// parseTime accepts the ISO-8601 shapes the feed produces. Values without
// an offset are read as UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparsable time %q", s)
}
