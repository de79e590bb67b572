package sweeper

import (
	"context"
	"time"

	"antique-auction/internal/closing"
	"antique-auction/utils"
)

// integritySweepEvery runs the integrity sweep once per N expiry sweeps
const integritySweepEvery = 10

// Sweeper periodically drives the closing engine: expired auctions are
// closed on every tick and dangling money state is repaired on a slower
// cadence. It is the in-process stand-in for an external cron trigger.
type Sweeper struct {
	closer   *closing.Service
	interval time.Duration
}

// New creates a sweeper that ticks at the given interval
func New(closer *closing.Service, interval time.Duration) *Sweeper {
	return &Sweeper{closer: closer, interval: interval}
}

// Run blocks, sweeping on every tick until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	utils.Info("sweeper: started", map[string]any{"interval": s.interval.String()})
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			utils.Info("sweeper: stopped", nil)
			return
		case <-ticker.C:
			if _, err := s.closer.ProcessExpiredAuctions(); err != nil {
				utils.Error("sweeper: expiry sweep failed", map[string]any{"error": err.Error()})
			}
			ticks++
			if ticks%integritySweepEvery == 0 {
				if _, err := s.closer.IntegritySweep(); err != nil {
					utils.Error("sweeper: integrity sweep failed", map[string]any{"error": err.Error()})
				}
			}
		}
	}
}
