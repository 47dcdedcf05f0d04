package chunk

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsbot/internal/blocks"
	"eventsbot/internal/model"
)

const week = model.Week("2023-10-22")

func newTestChunker() *Chunker {
	b := blocks.NewBuilder("HackGreenville Events", 0, time.UTC)
	return New(0, 0, b.Header)
}

// frag builds a fragment of n code points tagged with id so it can be
// found again in the packed output.
func frag(id string, n int) blocks.Fragment {
	body := id + strings.Repeat(".", n-len(id)-1) + "\n"
	return blocks.Fragment{Text: body, Length: len(body)}
}

func frags(sizes ...int) []blocks.Fragment {
	out := make([]blocks.Fragment, len(sizes))
	for i, n := range sizes {
		out[i] = frag(fmt.Sprintf("<%d>", i), n)
	}
	return out
}

func TestMessagesNeeded(t *testing.T) {
	c := newTestChunker()
	tests := []struct {
		name  string
		sizes []int
		want  int
	}{
		{"empty week", nil, 1},
		{"one small event", []int{100}, 1},
		{"exactly one message", []int{2939}, 1},
		{"one over", []int{2939, 10}, 2},
		{"ceiling of 9000 over 2939", []int{3000, 3000, 3000}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.MessagesNeeded(frags(tt.sizes...)))
		})
	}
}

func TestChunk_EmptyWeekIsHeaderOnly(t *testing.T) {
	c := newTestChunker()
	res := c.Chunk(nil, week)
	require.Len(t, res.Drafts, 1)
	assert.Equal(t, 1, res.MessagesNeeded)
	assert.Equal(t, "HackGreenville Events for the week of October 22 - 1 of 1\n\n===\n\n", res.Drafts[0].Text)
	assert.Equal(t, 1, res.Drafts[0].Position)
	assert.False(t, res.Mismatch())
}

func TestChunk_NeverSplitsFragments(t *testing.T) {
	c := newTestChunker()
	in := frags(900, 800, 1200, 400, 700, 1500, 300, 50, 2000)
	res := c.Chunk(in, week)

	var bodies strings.Builder
	for i, d := range res.Drafts {
		assert.Equal(t, i+1, d.Position)
		header := c.Header(week, d.Position, res.MessagesNeeded).Text
		require.True(t, strings.HasPrefix(d.Text, header))
		bodies.WriteString(strings.TrimPrefix(d.Text, header))
	}

	var want strings.Builder
	for _, f := range in {
		want.WriteString(f.Text)
		found := 0
		for _, d := range res.Drafts {
			if strings.Contains(d.Text, f.Text) {
				found++
			}
		}
		assert.Equal(t, 1, found, "fragment must land whole in exactly one message")
	}
	assert.Equal(t, want.String(), bodies.String(), "fragment order is preserved")
}

func TestChunk_StaysUnderCap(t *testing.T) {
	c := newTestChunker()
	res := c.Chunk(frags(900, 800, 1200, 400, 700, 1500, 300, 50), week)
	for _, d := range res.Drafts {
		assert.Less(t, len(d.Text), c.Cap)
	}
}

func TestChunk_HeadersCarryTotal(t *testing.T) {
	c := newTestChunker()
	res := c.Chunk(frags(2000, 2000, 2000), week)
	require.Equal(t, 3, res.MessagesNeeded)
	require.Len(t, res.Drafts, 3)
	for i, d := range res.Drafts {
		assert.Contains(t, d.Text, fmt.Sprintf("- %d of 3\n", i+1))
	}
}

func TestChunk_OversizedFragmentOverflows(t *testing.T) {
	c := newTestChunker()
	res := c.Chunk(frags(4000), week)
	require.Len(t, res.Drafts, 1, "no header-only message before an oversized event")
	assert.Greater(t, len(res.Drafts[0].Text), c.Cap)
	assert.Equal(t, 2, res.MessagesNeeded)
	assert.True(t, res.Mismatch())
}

// Greedy packing and the length estimate can disagree: three
// half-message events need ceil(4500/2939) = 2 by length but only two
// of them fit beside a header.
func TestChunk_GreedyCountCanExceedEstimate(t *testing.T) {
	c := newTestChunker()
	res := c.Chunk(frags(1500, 1500, 1500), week)
	assert.Equal(t, 2, res.MessagesNeeded)
	assert.Len(t, res.Drafts, 3)
	assert.True(t, res.Mismatch())
	assert.Contains(t, res.Drafts[2].Text, "- 3 of 2\n")
}

func TestNew_Defaults(t *testing.T) {
	c := New(-1, 5000, nil)
	assert.Equal(t, DefaultCap, c.Cap)
	assert.Equal(t, DefaultHeaderReserve, c.HeaderReserve)

	res := c.Chunk(frags(100), week)
	require.Len(t, res.Drafts, 1)
	assert.True(t, strings.HasPrefix(res.Drafts[0].Text, blocks.DefaultTitle+" for the week of October 22 - 1 of 1\n"))
}
