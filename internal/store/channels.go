package store

import (
	"context"
	"fmt"
)

// ListChannels returns the registered Slack channel IDs in registration
// order.
func (s *Store) ListChannels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slack_channel_id FROM channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list channels: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return out, nil
}

// AddChannel registers channelID. It returns ErrChannelExists when the
// channel is already registered.
func (s *Store) AddChannel(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO channels (slack_channel_id) VALUES (?)`, channelID)
	if isUniqueViolation(err) {
		return fmt.Errorf("add channel %s: %w", channelID, ErrChannelExists)
	}
	if err != nil {
		return fmt.Errorf("add channel %s: %w", channelID, err)
	}
	return nil
}

// RemoveChannel unregisters channelID and, through the foreign key,
// forgets its stored messages. Posted Slack messages are left in place.
func (s *Store) RemoveChannel(ctx context.Context, channelID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE slack_channel_id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("remove channel %s: %w", channelID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove channel %s: %w", channelID, err)
	}
	if n == 0 {
		return fmt.Errorf("remove channel %s: %w", channelID, ErrChannelNotFound)
	}
	return nil
}
