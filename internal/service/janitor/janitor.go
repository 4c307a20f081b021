package janitor

import (
	"context"
	"time"

	"github.com/nkiryanov/portalauth/internal/logger"
)

const defaultInterval = 10 * time.Minute

type purger interface {
	// Delete expired entries, return how many were deleted
	PurgeExpired(ctx context.Context) (int64, error)
}

// Janitor periodically removes expired refresh tokens and blacklist entries
// from stores that can't expire them on their own
type Janitor struct {
	interval time.Duration
	logger   logger.Logger
	purger   purger
}

func New(p purger, interval time.Duration, l logger.Logger) *Janitor {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Janitor{
		interval: interval,
		logger:   l,
		purger:   p,
	}
}

// Run purges on every tick until ctx is done. Returned channel is closed when janitor stopped
func (j *Janitor) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	j.logger.Debug("Starting janitor", "interval", j.interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				j.logger.Debug("Janitor stopped by context")
				return

			case <-ticker.C:
				deleted, err := j.purger.PurgeExpired(ctx)
				if err != nil {
					if ctx.Err() == nil {
						j.logger.Error("Failed to purge expired tokens", "error", err)
					}
					continue
				}
				if deleted > 0 {
					j.logger.Debug("Expired tokens purged", "count", deleted)
				}
			}
		}
	}()

	return idleStopped
}
