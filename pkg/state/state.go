// Package state persists what the submission pipeline remembers between runs:
// when it last submitted, the batch id the collector handed back, and the last
// snapshot the collector accepted.
package state

import (
	"context"
	"math"
	"time"

	"github.com/bilal/devstats/pkg/snapshot"
)

// Durable key names. They match the host-preferences keys used by earlier
// releases so an existing store keeps working.
const (
	KeyLastSubmitTimestamp = "lastSubmitTimestamp"
	KeyLastBatchID         = "lastBatchId"
	KeyLastSnapshot        = "lastSnapshot"
)

// State is a point-in-time read of the store. Zero values mean "absent".
type State struct {
	LastSubmit   time.Time
	LastBatchID  string
	LastSnapshot snapshot.Snapshot
}

// Commit carries the fields written after a confirmed submission.
// An empty BatchID or nil Snapshot leaves the stored value untouched.
type Commit struct {
	Timestamp time.Time
	BatchID   string
	Snapshot  snapshot.Snapshot
}

// Store is a durable key/value record. Implementations must be safe for
// concurrent use.
type Store interface {
	Load(ctx context.Context) (State, error)
	// SeedLastSubmit stores t only when no timestamp is present yet and
	// returns the timestamp in effect afterwards.
	SeedLastSubmit(ctx context.Context, t time.Time) (time.Time, bool, error)
	SetLastSubmit(ctx context.Context, t time.Time) error
	CommitSuccess(ctx context.Context, c Commit) error
}

// ToEpochSeconds renders t as float seconds since the Unix epoch; the zero
// time maps to 0.
func ToEpochSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromEpochSeconds is the inverse of ToEpochSeconds.
func FromEpochSeconds(s float64) time.Time {
	if s == 0 || math.IsNaN(s) {
		return time.Time{}
	}
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*float64(time.Second))))
}
