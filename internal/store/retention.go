package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/carenav/internal/shared"
)

const retentionWorkerInterval = 30 * time.Minute

// purgeWithRetry deletes expired events, retrying on SQLITE_BUSY.
func purgeWithRetry(ctx context.Context, repo Repository, cutoff time.Time) (int64, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, "purge retrievals", 3, 100*time.Millisecond, func() error {
		var err error
		deleted, err = repo.PurgeBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purge retrievals: %w", err)
	}
	return deleted, nil
}

// StartRetentionWorker periodically deletes audit events older than retention.
func StartRetentionWorker(ctx context.Context, repo Repository, retention time.Duration) {
	if retention <= 0 {
		slog.Info("Retention worker disabled")
		return
	}
	ticker := time.NewTicker(retentionWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", retentionWorkerInterval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				sweepExpired(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpired(ctx context.Context, repo Repository, retention time.Duration) {
	deleted, err := purgeWithRetry(ctx, repo, time.Now().Add(-retention))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Retention worker failed to purge retrievals", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Retention worker purged retrievals", "count", deleted)
	}
}
