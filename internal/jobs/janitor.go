package jobs

import (
	"context"
	"log/slog"
	"time"
)

const (
	// Terminal jobs stay queryable for an hour after finishing.
	defaultRetention     = time.Hour
	defaultSweepInterval = 5 * time.Minute
)

// Janitor removes expired terminal jobs from a store on a fixed sweep cadence.
type Janitor struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewJanitor creates a Janitor for store. Non-positive retention or interval
// values fall back to the defaults.
func NewJanitor(store Store, retention, interval time.Duration) *Janitor {
	if retention <= 0 {
		retention = defaultRetention
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Janitor{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    slog.Default(),
	}
}

// Run sweeps until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(j.interval):
		}

		if n := j.SweepOnce(time.Now().UTC()); n > 0 {
			j.logger.Info("evicted expired jobs", "count", n)
		}
	}
}

// SweepOnce evicts jobs that reached a terminal state before now minus the
// retention window. Returns the number of evicted jobs.
func (j *Janitor) SweepOnce(now time.Time) int {
	return j.store.EvictBefore(now.Add(-j.retention))
}
