package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper runs Reap on a fixed interval, independently of request handling.
type Reaper struct {
	svc       SessionService
	interval  time.Duration
	threshold time.Duration
	log       *zap.Logger
}

// NewReaper returns a reaper sweeping every interval for sessions idle longer than threshold.
func NewReaper(svc SessionService, interval, threshold time.Duration, log *zap.Logger) *Reaper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{svc: svc, interval: interval, threshold: threshold, log: log.Named("reaper")}
}

// Run sweeps once immediately, which also clears directories left by a previous
// process, then on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.log.Info("reaper started",
		zap.Duration("interval", r.interval),
		zap.Duration("threshold", r.threshold),
	)
	r.svc.Reap(ctx, time.Now(), r.threshold)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return
		case now := <-ticker.C:
			r.svc.Reap(ctx, now, r.threshold)
		}
	}
}
