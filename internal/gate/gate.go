package gate

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/bilal/devstats/pkg/state"
)

// Jitter bounds for the first synthesized submit timestamp, as fractions of
// the minimum submit interval.
const (
	MinJitterFactor = 0.2
	MaxJitterFactor = 1.2
)

type Decision string

const (
	Admitted Decision = "ADMITTED"
	Denied   Decision = "DENIED"
)

// Gate rate-limits submissions against the persisted last-submit timestamp.
type Gate struct {
	mu sync.Mutex

	store    state.Store
	interval time.Duration
	clock    clockwork.Clock
	rng      func() float64
	log      zerolog.Logger
}

type Config struct {
	Store                 state.Store
	MinimumSubmitInterval time.Duration
	Clock                 clockwork.Clock // optional, defaults to the real clock
	Rand                  func() float64  // optional, must return values in [0, 1)
	Logger                zerolog.Logger
}

func New(cfg Config) *Gate {
	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	rng := cfg.Rand
	if rng == nil {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		var rmu sync.Mutex
		rng = func() float64 {
			rmu.Lock()
			defer rmu.Unlock()
			return r.Float64()
		}
	}
	return &Gate{
		store:    cfg.Store,
		interval: cfg.MinimumSubmitInterval,
		clock:    clk,
		rng:      rng,
		log:      cfg.Logger,
	}
}

// Seed backdates the last-submit timestamp by a random share of the interval
// when none has been stored yet, so a fleet installed at the same moment does
// not submit in lockstep. Once a timestamp exists it is returned unchanged.
func (g *Gate) Seed(ctx context.Context) (time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seed(ctx, g.clock.Now())
}

func (g *Gate) seed(ctx context.Context, now time.Time) (time.Time, error) {
	factor := MinJitterFactor + g.rng()*(MaxJitterFactor-MinJitterFactor)
	candidate := now.Add(-time.Duration(factor * float64(g.interval)))

	last, seeded, err := g.store.SeedLastSubmit(ctx, candidate)
	if err != nil {
		return time.Time{}, fmt.Errorf("seed last submit: %w", err)
	}
	if seeded {
		g.log.Debug().
			Float64("factor", factor).
			Time("last_submit", last).
			Msg("seeded last submit timestamp")
	}
	return last, nil
}

// Evaluate seeds if needed and then decides admission for an attempt made
// now. Seeding always runs first, even when the attempt ends up denied. The
// returned time is the instant the decision was taken for.
func (g *Gate) Evaluate(ctx context.Context) (Decision, time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	last, err := g.seed(ctx, now)
	if err != nil {
		return Denied, now, err
	}

	if !Allowed(last, now, g.interval) {
		g.log.Debug().
			Time("last_submit", last).
			Dur("remaining", g.interval-now.Sub(last)).
			Msg("submission gated")
		return Denied, now, nil
	}
	return Admitted, now, nil
}

// Allowed reports whether strictly more than interval has passed since last.
func Allowed(last, now time.Time, interval time.Duration) bool {
	return now.Sub(last) > interval
}
