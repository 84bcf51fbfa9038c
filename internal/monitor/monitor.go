package monitor

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bilal/devstats/pkg/snapshot"
)

// Collector produces the snapshot offered on each tick.
type Collector interface {
	Collect(ctx context.Context) snapshot.Snapshot
}

// Submitter takes a snapshot without blocking on delivery.
type Submitter interface {
	Submit(ctx context.Context, snap snapshot.Snapshot)
}

// Runner offers a fresh snapshot at start-up and then on every interval.
// Whether anything is sent is up to the submitter's rate limit.
type Runner struct {
	interval  time.Duration
	collector Collector
	submitter Submitter
	clock     clockwork.Clock
}

func New(interval time.Duration, c Collector, s Submitter, clk clockwork.Clock) *Runner {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Runner{
		interval:  interval,
		collector: c,
		submitter: s,
		clock:     clk,
	}
}

func (r *Runner) Run(ctx context.Context) {
	log.Info().Dur("interval", r.interval).Msg("stats runner started")

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stats runner stopping")
			return
		case <-ticker.Chan():
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	snap := r.collector.Collect(ctx)
	if ctx.Err() != nil {
		return
	}
	log.Debug().Int("fields", len(snap)).Msg("snapshot collected")
	r.submitter.Submit(ctx, snap)
}
