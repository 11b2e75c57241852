package store

import (
	"context"
	"log/slog"
	"time"
)

const ttlWorkerInterval = 5 * time.Minute

// CleanupCallback is called after the TTL worker removes expired case sessions.
type CleanupCallback func(deleted int64)

// StartTTLWorker runs a background goroutine that periodically removes case
// sessions that have been idle longer than ttl.
func StartTTLWorker(ctx context.Context, cases CaseStore, ttl time.Duration, onCleanup CleanupCallback) {
	startTTLWorker(ctx, cases, ttl, ttlWorkerInterval, onCleanup)
}

func startTTLWorker(ctx context.Context, cases CaseStore, ttl, interval time.Duration, onCleanup CleanupCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				cleanupExpiredCases(ctx, cases, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func cleanupExpiredCases(ctx context.Context, cases CaseStore, ttl time.Duration, onCleanup CleanupCallback) {
	deleted, err := cases.CleanupExpiredCases(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to cleanup expired cases", "error", err)
		return
	}
	if deleted == 0 {
		return
	}

	slog.Info("TTL worker removed expired cases", "count", deleted)
	if onCleanup != nil {
		onCleanup(deleted)
	}
}
