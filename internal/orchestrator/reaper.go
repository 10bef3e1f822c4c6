package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunReaper periodically sweeps stale sessions until ctx is cancelled.
// Intended to run as a goroutine from main.
func (o *Orchestrator) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.log.Info("session reaper started",
		zap.Duration("interval", interval),
		zap.Duration("idle_timeout", o.cfg.IdleTimeout))

	for {
		select {
		case <-ctx.Done():
			o.log.Info("session reaper stopped")
			return
		case <-ticker.C:
			if n := o.ReapStale(ctx); n > 0 {
				o.log.Info("reaped stale sessions", zap.Int("count", n))
			}
		}
	}
}
