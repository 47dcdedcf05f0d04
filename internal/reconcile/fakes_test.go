package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/slack-go/slack"

	"eventsbot/internal/chunk"
	"eventsbot/internal/model"
)

type memStore struct {
	mu       sync.Mutex
	channels []string
	messages []model.StoredMessage
	failGet  error
}

func (s *memStore) ListChannels(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.channels...), nil
}

func (s *memStore) GetMessages(ctx context.Context, week model.Week) ([]model.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	var out []model.StoredMessage
	for _, m := range s.messages {
		if m.Week == week {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) CreateMessage(ctx context.Context, msg model.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *memStore) UpdateMessage(ctx context.Context, week model.Week, text, ts, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.Week == week && m.Timestamp == ts && m.ChannelID == channelID {
			s.messages[i].Text = text
			return nil
		}
	}
	return errors.New("no such message")
}

func (s *memStore) HasMessageAfter(ctx context.Context, channelID string, week model.Week) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ChannelID == channelID && m.Week > week {
			return true, nil
		}
	}
	return false, nil
}

// channelMessages returns a channel's rows for week sorted by position.
func (s *memStore) channelMessages(channelID string, week model.Week) []model.StoredMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.StoredMessage
	for _, m := range s.messages {
		if m.ChannelID == channelID && m.Week == week {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

type call struct {
	Op      string
	Channel string
	TS      string
	Text    string
}

type recordingGateway struct {
	mu      sync.Mutex
	calls   []call
	seq     int
	failFor map[string]error
}

func (g *recordingGateway) Post(ctx context.Context, channelID string, blocks []slack.Block, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failFor[channelID]; err != nil {
		return "", err
	}
	g.seq++
	ts := fmt.Sprintf("%d.000100", 1700000000+g.seq)
	g.calls = append(g.calls, call{Op: "post", Channel: channelID, TS: ts, Text: text})
	return ts, nil
}

func (g *recordingGateway) Update(ctx context.Context, ts, channelID string, blocks []slack.Block, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failFor[channelID]; err != nil {
		return err
	}
	g.calls = append(g.calls, call{Op: "update", Channel: channelID, TS: ts, Text: text})
	return nil
}

func (g *recordingGateway) callsFor(channelID string) []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []call
	for _, c := range g.calls {
		if c.Channel == channelID {
			out = append(out, c)
		}
	}
	return out
}

func (g *recordingGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func drafts(texts ...string) []chunk.MessageDraft {
	out := make([]chunk.MessageDraft, len(texts))
	for i, t := range texts {
		out[i] = chunk.MessageDraft{Position: i + 1, Text: t}
	}
	return out
}
