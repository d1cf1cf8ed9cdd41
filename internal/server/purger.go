package server

import (
	"context"
	"log/slog"
	"time"

	"workhub/internal/engine"
)

// RunPurger calls PurgeExpired every interval until ctx is cancelled. A
// non-positive interval disables it.
func RunPurger(ctx context.Context, e engine.Engine, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		report, err := e.PurgeExpired(ctx, false)
		if err != nil {
			logger.Error("scheduled purge failed", "err", err)
			continue
		}
		if len(report.Purged) > 0 {
			logger.Info("scheduled purge", "purged", len(report.Purged))
		}
	}
}
