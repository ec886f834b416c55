package store

import (
	"context"
	"sync/atomic"
	"time"

	"anonchat/pkg/logger"
)

// DefaultSweepInterval is how often expired rooms are destroyed when the
// config does not say otherwise.
const DefaultSweepInterval = 60 * time.Second

// Sweeper periodically destroys rooms past their TTL. Lookups already
// treat expired rooms as gone; the sweep reclaims their memory and lets
// still-connected sessions be told their room vanished.
type Sweeper struct {
	store     *Store
	interval  time.Duration
	onExpired func(roomID string)
	sweeping  atomic.Bool
}

// NewSweeper builds a sweeper. onExpired, if non-nil, is invoked once per
// destroyed room after the room's data is gone.
func NewSweeper(s *Store, interval time.Duration, onExpired func(roomID string)) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: s, interval: interval, onExpired: onExpired}
}

// Run blocks until ctx is cancelled, sweeping once per interval. A tick
// that fires while a sweep is still in progress is skipped rather than
// allowed to overlap.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sw.sweeping.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer sw.sweeping.Store(false)
				sw.Sweep()
			}()
		}
	}
}

// Sweep destroys all expired rooms and returns how many were destroyed.
func (sw *Sweeper) Sweep() int {
	expired := sw.store.SweepExpired()
	if len(expired) > 0 {
		logger.Info("Cleaned up %d expired room(s)", len(expired))
	}
	for _, roomID := range expired {
		if sw.onExpired != nil {
			sw.onExpired(roomID)
		}
	}
	return len(expired)
}
