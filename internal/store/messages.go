package store

import (
	"context"
	"fmt"
	"time"

	"eventsbot/internal/model"
)

// GetMessages returns every stored message for week ordered by channel
// and position.
func (s *Store) GetMessages(ctx context.Context, week model.Week) ([]model.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.week, c.slack_channel_id, m.position, m.message_timestamp, m.message
		FROM messages m
		JOIN channels c ON m.channel_id = c.id
		WHERE m.week = ?
		ORDER BY c.slack_channel_id, m.position
	`, string(week))
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var out []model.StoredMessage
	for rows.Next() {
		var (
			msg     model.StoredMessage
			rawWeek string
		)
		if err := rows.Scan(&rawWeek, &msg.ChannelID, &msg.Position, &msg.Timestamp, &msg.Text); err != nil {
			return nil, fmt.Errorf("get messages: %w", err)
		}
		msg.Week = model.Week(rawWeek)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return out, nil
}

// CreateMessage records a newly posted message. The channel must be
// registered.
func (s *Store) CreateMessage(ctx context.Context, msg model.StoredMessage) error {
	channelRow, err := s.channelRowID(ctx, s.db, msg.ChannelID)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (week, message_timestamp, message, channel_id, position)
		VALUES (?, ?, ?, ?, ?)
	`, string(msg.Week), msg.Timestamp, msg.Text, channelRow, msg.Position)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// UpdateMessage replaces the stored text of the message identified by
// (week, ts, channel). Its position and ts are unchanged.
func (s *Store) UpdateMessage(ctx context.Context, week model.Week, text, ts, channelID string) error {
	channelRow, err := s.channelRowID(ctx, s.db, channelID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE messages SET message = ?
		WHERE week = ? AND message_timestamp = ? AND channel_id = ?
	`, text, string(week), ts, channelRow)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// HasMessageAfter reports whether channelID has any message stored for a
// week later than week.
func (s *Store) HasMessageAfter(ctx context.Context, channelID string, week model.Week) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM messages m
			JOIN channels c ON m.channel_id = c.id
			WHERE c.slack_channel_id = ? AND m.week > ?
		)
	`, channelID, string(week)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has message after: %w", err)
	}
	return exists, nil
}

// DeleteOlderThan removes messages whose week began more than days ago
// and returns how many rows went.
func (s *Store) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -days).Format(time.DateOnly)
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE week < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	return n, nil
}
