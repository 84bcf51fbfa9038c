package collector

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilal/devstats/pkg/snapshot"
)

var fixedNow = time.Unix(1717232400, 0)

func staticProbe(category Options, values snapshot.Snapshot) Probe {
	return ProbeFunc(category, func(context.Context) (snapshot.Snapshot, error) {
		return values, nil
	})
}

func TestCollect_BaseKeys(t *testing.T) {
	c := New(Config{
		BundleIdentifier: "nl.example.app",
		Clock:            clockwork.NewFakeClockAt(fixedNow),
		Logger:           zerolog.Nop(),
	})

	snap := c.Collect(context.Background())
	assert.Equal(t, snapshot.Snapshot{
		KeyStatsVersion:     DefaultStatsVersion,
		KeyStatsTimestamp:   "1717232400",
		KeyBundleIdentifier: "nl.example.app",
	}, snap)
}

func TestCollect_OnlyEnabledCategories(t *testing.T) {
	c := New(Config{
		Options: Screen | System,
		Probes: []Probe{
			staticProbe(Screen, snapshot.Snapshot{"Screen_scale": "@2x"}),
			staticProbe(System, snapshot.Snapshot{"System_model_id": "arm64"}),
			staticProbe(Accessibility, snapshot.Snapshot{"Accessibility_isBoldTextEnabled": "true"}),
		},
		Clock:  clockwork.NewFakeClockAt(fixedNow),
		Logger: zerolog.Nop(),
	})

	snap := c.Collect(context.Background())
	assert.Equal(t, "@2x", snap["Screen_scale"])
	assert.Equal(t, "arm64", snap["System_model_id"])
	assert.NotContains(t, snap, "Accessibility_isBoldTextEnabled")
	assert.NotContains(t, snap, KeyBundleIdentifier)
}

func TestCollect_FailingProbeIsSkipped(t *testing.T) {
	c := New(Config{
		Options: All,
		Probes: []Probe{
			ProbeFunc(Screen, func(context.Context) (snapshot.Snapshot, error) {
				return nil, errors.New("no screen")
			}),
			staticProbe(System, snapshot.Snapshot{"System_model_id": "amd64", "": "dropped"}),
		},
		Clock:  clockwork.NewFakeClockAt(fixedNow),
		Logger: zerolog.Nop(),
	})

	snap := c.Collect(context.Background())
	assert.Equal(t, "amd64", snap["System_model_id"])
	assert.NotContains(t, snap, "")
}

func TestCollect_PairingResolvedViaChannel(t *testing.T) {
	c := New(Config{
		Options: Watch,
		Pairing: func(context.Context) (bool, <-chan bool) {
			ch := make(chan bool, 1)
			ch <- true
			return true, ch
		},
		Clock:  clockwork.NewFakeClockAt(fixedNow),
		Logger: zerolog.Nop(),
	})

	snap := c.Collect(context.Background())
	assert.Equal(t, "true", snap[KeyWatchSupported])
	assert.Equal(t, "true", snap[KeyWatchPaired])
}

func TestCollect_PairingUnsupported(t *testing.T) {
	c := New(Config{
		Options: Watch,
		Pairing: func(context.Context) (bool, <-chan bool) { return false, nil },
		Clock:   clockwork.NewFakeClockAt(fixedNow),
		Logger:  zerolog.Nop(),
	})

	snap := c.Collect(context.Background())
	assert.Equal(t, "false", snap[KeyWatchSupported])
	assert.Equal(t, "false", snap[KeyWatchPaired])
}

func TestCollect_PairingTimesOut(t *testing.T) {
	clk := clockwork.NewFakeClockAt(fixedNow)
	c := New(Config{
		Options: Watch,
		Pairing: func(context.Context) (bool, <-chan bool) { return true, make(chan bool) },
		Clock:   clk,
		Logger:  zerolog.Nop(),
	})

	done := make(chan snapshot.Snapshot, 1)
	go func() { done <- c.Collect(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(DefaultPairingWait)

	select {
	case snap := <-done:
		assert.Equal(t, "true", snap[KeyWatchSupported])
		assert.NotContains(t, snap, KeyWatchPaired)
	case <-ctx.Done():
		t.Fatal("collect did not return after pairing wait")
	}
}

func TestCollect_WatchWithoutPairingFunc(t *testing.T) {
	c := New(Config{Options: Watch, Clock: clockwork.NewFakeClockAt(fixedNow), Logger: zerolog.Nop()})

	snap := c.Collect(context.Background())
	assert.NotContains(t, snap, KeyWatchSupported)
}

func TestSystemProbe(t *testing.T) {
	tests := []struct {
		name         string
		env          map[string]string
		wantLanguage string
		wantDutch    string
	}{
		{name: "dutch locale", env: map[string]string{"LANG": "nl_NL.UTF-8"}, wantLanguage: "nl-NL", wantDutch: "true"},
		{name: "LC_ALL wins", env: map[string]string{"LC_ALL": "en_US.UTF-8", "LANG": "nl_NL.UTF-8"}, wantLanguage: "en-US", wantDutch: "false"},
		{name: "language only", env: map[string]string{"LANG": "nl"}, wantLanguage: "nl", wantDutch: "false"},
		{name: "posix locale", env: map[string]string{"LANG": "C.UTF-8"}, wantLanguage: "", wantDutch: "false"},
		{name: "unset", env: map[string]string{}, wantLanguage: "", wantDutch: "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := SystemProbe(func(k string) string { return tt.env[k] })
			assert.Equal(t, System, p.Category())

			snap, err := p.Collect(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantLanguage, snap[KeySystemPreferredLanguage])
			assert.Equal(t, tt.wantDutch, snap[KeySystemDutchRegion])
			assert.Equal(t, runtime.GOOS, snap[KeySystemOSName])
			assert.Equal(t, runtime.GOARCH, snap[KeySystemModelID])
		})
	}
}

func TestParseOptions(t *testing.T) {
	o, err := ParseOptions([]string{"system", " Screen "})
	require.NoError(t, err)
	assert.Equal(t, System|Screen, o)
	assert.Equal(t, "screen|system", o.String())

	o, err = ParseOptions([]string{"all"})
	require.NoError(t, err)
	assert.Equal(t, All, o)
	assert.True(t, o.Has(Watch))

	_, err = ParseOptions([]string{"bluetooth"})
	assert.Error(t, err)

	assert.Equal(t, "none", Options(0).String())
	assert.False(t, Options(0).Has(0))
}
