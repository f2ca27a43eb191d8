// Package jobs wires the asynq worker and housekeeping tasks.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverridePurge is the task type for purging expired overrides.
	TaskOverridePurge = "override:purge_expired"
)

// ExpiredPurger removes overrides whose expiry has passed.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// NewOverridePurgeTask constructs the purge task.
func NewOverridePurgeTask() *asynq.Task {
	return asynq.NewTask(TaskOverridePurge, nil)
}

// NewOverridePurgeHandler returns the handler for TaskOverridePurge.
// Purging is storage reclamation only; resolution never depends on it
// because expiry is evaluated on every read.
func NewOverridePurgeHandler(purger ExpiredPurger, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		purged, err := purger.PurgeExpired(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("purged expired overrides", slog.Int64("purged", purged))
		}
		return nil
	}
}
