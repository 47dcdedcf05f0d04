// Package chunk packs a week's event fragments into Slack messages.
package chunk

import (
	"github.com/slack-go/slack"

	"eventsbot/internal/blocks"
	"eventsbot/internal/model"
)

const (
	// DefaultCap is the soft per-message length limit, in code points.
	DefaultCap = 3000
	// DefaultHeaderReserve is the room kept for the header when
	// estimating how many messages a week needs.
	DefaultHeaderReserve = 61
)

// HeaderFunc renders the header opening message index of total.
type HeaderFunc func(week model.Week, index, total int) blocks.Fragment

// MessageDraft is one message ready to post or compare.
type MessageDraft struct {
	// Position is 1-based.
	Position int
	Blocks   []slack.Block
	Text     string
}

// Result is the packed week.
type Result struct {
	Drafts []MessageDraft
	// MessagesNeeded is the total printed in every header.
	MessagesNeeded int
}

// Mismatch reports whether packing emitted a different number of
// messages than the headers announce.
func (r Result) Mismatch() bool {
	return len(r.Drafts) != r.MessagesNeeded
}

type Chunker struct {
	Cap           int
	HeaderReserve int
	Header        HeaderFunc
}

// New returns a Chunker, substituting defaults for non-positive limits.
// A nil header renders with the default digest title.
func New(limit, headerReserve int, header HeaderFunc) *Chunker {
	if limit <= 0 {
		limit = DefaultCap
	}
	if headerReserve <= 0 || headerReserve >= limit {
		headerReserve = DefaultHeaderReserve
	}
	if header == nil {
		header = blocks.NewBuilder("", 0, nil).Header
	}
	return &Chunker{Cap: limit, HeaderReserve: headerReserve, Header: header}
}

// MessagesNeeded is max(1, ceil(total / (Cap - HeaderReserve))) where
// total is the summed fragment length.
func (c *Chunker) MessagesNeeded(frags []blocks.Fragment) int {
	total := 0
	for _, f := range frags {
		total += f.Length
	}
	per := c.Cap - c.HeaderReserve
	n := (total + per - 1) / per
	if n < 1 {
		return 1
	}
	return n
}

// Chunk greedily packs frags in order. A new message starts when adding
// the next fragment would reach Cap. Fragments are never split, so a
// fragment longer than Cap yields a message over the limit. An empty
// week still yields one header-only message.
func (c *Chunker) Chunk(frags []blocks.Fragment, week model.Week) Result {
	total := c.MessagesNeeded(frags)

	var drafts []MessageDraft
	cur, length := c.open(week, 1, total)
	filled := false

	for _, f := range frags {
		if filled && length+f.Length >= c.Cap {
			drafts = append(drafts, cur)
			cur, length = c.open(week, len(drafts)+1, total)
		}
		cur.Blocks = append(cur.Blocks, f.Blocks...)
		cur.Text += f.Text
		length += f.Length
		filled = true
	}
	drafts = append(drafts, cur)

	return Result{Drafts: drafts, MessagesNeeded: total}
}

func (c *Chunker) open(week model.Week, position, total int) (MessageDraft, int) {
	h := c.Header(week, position, total)
	d := MessageDraft{
		Position: position,
		Blocks:   append([]slack.Block(nil), h.Blocks...),
		Text:     h.Text,
	}
	return d, h.Length
}
