// Package collector assembles a snapshot from independent probes.
package collector

import (
	"context"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/bilal/devstats/pkg/snapshot"
	"github.com/bilal/devstats/pkg/state"
)

const (
	DefaultStatsVersion = "go 2024-06-01"
	DefaultPairingWait  = 5 * time.Second

	KeyStatsVersion     = "Stats_version"
	KeyStatsTimestamp   = "Stats_timestamp"
	KeyBundleIdentifier = "App_bundle_identifier"
	KeyWatchSupported   = "Watch_supported"
	KeyWatchPaired      = "Watch_paired"
)

// Probe reads one category of signals. Keys must be non-empty and stable
// across calls.
type Probe interface {
	Category() Options
	Collect(ctx context.Context) (snapshot.Snapshot, error)
}

type probeFunc struct {
	category Options
	fn       func(ctx context.Context) (snapshot.Snapshot, error)
}

func (p probeFunc) Category() Options { return p.category }

func (p probeFunc) Collect(ctx context.Context) (snapshot.Snapshot, error) { return p.fn(ctx) }

// ProbeFunc adapts a function to a Probe in the given category.
func ProbeFunc(category Options, fn func(ctx context.Context) (snapshot.Snapshot, error)) Probe {
	return probeFunc{category: category, fn: fn}
}

// PairingFunc starts a companion-device pairing check. When supported is true
// the paired state arrives on the channel, at most once.
type PairingFunc func(ctx context.Context) (supported bool, paired <-chan bool)

type Config struct {
	Options          Options
	Probes           []Probe
	Pairing          PairingFunc   // optional; Watch is skipped without it
	PairingWait      time.Duration // optional, defaults to DefaultPairingWait
	BundleIdentifier string
	StatsVersion     string // optional, defaults to DefaultStatsVersion
	Clock            clockwork.Clock
	Logger           zerolog.Logger
}

type Collector struct {
	cfg Config
}

func New(cfg Config) *Collector {
	if cfg.PairingWait <= 0 {
		cfg.PairingWait = DefaultPairingWait
	}
	if cfg.StatsVersion == "" {
		cfg.StatsVersion = DefaultStatsVersion
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Collector{cfg: cfg}
}

// Collect runs every enabled probe and returns the merged snapshot. Probe
// failures are logged and skipped.
func (c *Collector) Collect(ctx context.Context) snapshot.Snapshot {
	snap := snapshot.Snapshot{
		KeyStatsVersion:   c.cfg.StatsVersion,
		KeyStatsTimestamp: strconv.FormatFloat(state.ToEpochSeconds(c.cfg.Clock.Now()), 'f', -1, 64),
	}
	if c.cfg.BundleIdentifier != "" {
		snap[KeyBundleIdentifier] = c.cfg.BundleIdentifier
	}

	for _, p := range c.cfg.Probes {
		if !c.cfg.Options.Has(p.Category()) {
			continue
		}
		values, err := p.Collect(ctx)
		if err != nil {
			c.cfg.Logger.Warn().Err(err).Str("category", p.Category().String()).Msg("probe failed")
			continue
		}
		for k, v := range values {
			if k == "" {
				continue
			}
			snap[k] = v
		}
	}

	if c.cfg.Options.Has(Watch) && c.cfg.Pairing != nil {
		c.collectPairing(ctx, snap)
	}
	return snap
}

func (c *Collector) collectPairing(ctx context.Context, snap snapshot.Snapshot) {
	supported, paired := c.cfg.Pairing(ctx)
	snap[KeyWatchSupported] = strconv.FormatBool(supported)
	if !supported || paired == nil {
		snap[KeyWatchPaired] = strconv.FormatBool(false)
		return
	}

	select {
	case v, ok := <-paired:
		if ok {
			snap[KeyWatchPaired] = strconv.FormatBool(v)
		}
	case <-c.cfg.Clock.After(c.cfg.PairingWait):
		c.cfg.Logger.Debug().Dur("wait", c.cfg.PairingWait).Msg("pairing state not available in time")
	case <-ctx.Done():
	}
}
