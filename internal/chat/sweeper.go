package chat

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper runs a background goroutine that evicts idle sessions until
// ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", m.ttl)

		for {
			select {
			case now := <-ticker.C:
				if n := m.Sweep(now); n > 0 {
					slog.Info("Session sweeper evicted idle sessions", "count", n, "remaining", m.Len())
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
