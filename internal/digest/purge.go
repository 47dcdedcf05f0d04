package digest

import (
	"context"

	"eventsbot/internal/errs"
	appLog "eventsbot/internal/log"
)

// MessageDeleter removes stored messages by age.
type MessageDeleter interface {
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// Purger forgets messages whose week is older than RetentionDays. The
// Slack messages themselves stay in the channel history.
type Purger struct {
	Store         MessageDeleter
	RetentionDays int
}

func (p *Purger) RunOnce(ctx context.Context) error {
	n, err := p.Store.DeleteOlderThan(ctx, p.RetentionDays)
	if err != nil {
		return errs.Transient("store delete old messages", err)
	}
	appLog.Info("purged old messages", "deleted", n, "retention_days", p.RetentionDays)
	return nil
}
