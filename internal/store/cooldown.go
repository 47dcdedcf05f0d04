package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CooldownExpiry returns when accessor may next use resource. The bool is
// false when no cooldown was ever recorded.
func (s *Store) CooldownExpiry(ctx context.Context, accessor, resource string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT expires_at FROM cooldowns WHERE accessor = ? AND resource = ?
	`, accessor, resource).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get cooldown: %w", err)
	}
	expiry, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get cooldown: parse %q: %w", raw, err)
	}
	return expiry, true, nil
}

// SetCooldown blocks accessor from resource for d starting now.
func (s *Store) SetCooldown(ctx context.Context, accessor, resource string, d time.Duration) (time.Time, error) {
	expiry := s.now().Add(d).UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cooldowns (accessor, resource, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (accessor, resource) DO UPDATE SET expires_at = excluded.expires_at
	`, accessor, resource, expiry.Format(time.RFC3339Nano))
	if err != nil {
		return time.Time{}, fmt.Errorf("set cooldown: %w", err)
	}
	return expiry, nil
}

// Now exposes the store's clock so callers compare cooldowns against
// the same time source that set them.
func (s *Store) Now() time.Time { return s.now() }
