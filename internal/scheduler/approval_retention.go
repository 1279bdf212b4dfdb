package scheduler

import (
	"context"
	"time"

	"acquisition_backend/internal/approval"
	"acquisition_backend/platform/logger"
)

const (
	defaultRetentionSweepInterval = time.Hour
	defaultResolvedRetention      = 30 * 24 * time.Hour
)

// ApprovalRetention periodically removes old resolved approval requests.
// Pending requests are kept until decided, however old.
type ApprovalRetention struct {
	store     approval.Store
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
}

func NewApprovalRetention(store approval.Store, log *logger.Logger, interval, retention time.Duration) *ApprovalRetention {
	if interval <= 0 {
		interval = defaultRetentionSweepInterval
	}
	if retention <= 0 {
		retention = defaultResolvedRetention
	}

	return &ApprovalRetention{
		store:     store,
		log:       log,
		interval:  interval,
		retention: retention,
	}
}

func (c *ApprovalRetention) Run(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *ApprovalRetention) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-c.retention)

	deleted, err := c.store.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		c.log.Warn("approval retention sweep failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("approval retention sweep removed resolved requests", "deleted", deleted)
	}
}
