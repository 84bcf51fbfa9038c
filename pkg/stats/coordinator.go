// Package stats submits device snapshots to a remote stats collector.
//
// Submit is fire-and-forget: it consults a persisted rate-limit gate, builds
// the payload for the configured wire protocol and hands the request to a
// background goroutine. At most one request goes out per admitted Submit and
// failed requests are never retried; the next admitted Submit after the
// interval is the retry. Nothing is reported to the caller besides logs,
// metrics and the optional outcome hook.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bilal/devstats/internal/gate"
	"github.com/bilal/devstats/internal/metrics"
	"github.com/bilal/devstats/internal/payload"
	"github.com/bilal/devstats/internal/transport"
	"github.com/bilal/devstats/pkg/snapshot"
	"github.com/bilal/devstats/pkg/state"
)

// ErrSubmissionInProgress is recorded when Submit is called while an earlier
// submission still waits on the collector.
var ErrSubmissionInProgress = errors.New("submission already in progress")

// Decision summarises how far a Submit call got.
type Decision string

const (
	DecisionGated      Decision = "GATED"
	DecisionInProgress Decision = "IN_PROGRESS"
	DecisionFailed     Decision = "FAILED"
	DecisionSubmitted  Decision = "SUBMITTED"
)

// Outcome describes one Submit call for diagnostics.
type Outcome struct {
	CorrelationID string
	At            time.Time
	Protocol      ProtocolKind
	Decision      Decision
	StatusCode    int
	BatchID       string
	Err           error
}

type Option func(*Coordinator)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

func WithClock(clk clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithRand replaces the jitter source; f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(c *Coordinator) { c.rng = f }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Coordinator) { c.httpClient = h }
}

// WithOutcomeHook registers f to be called once per Submit call, from the
// goroutine that finished it.
func WithOutcomeHook(f func(Outcome)) Option {
	return func(c *Coordinator) { c.onOutcome = f }
}

// Coordinator is the submission pipeline. It is safe for concurrent use;
// overlapping Submit calls are collapsed so at most one request is in flight.
type Coordinator struct {
	cfg        Configuration
	protocol   Protocol
	store      state.Store
	gate       *gate.Gate
	transport  *transport.Client
	log        zerolog.Logger
	clock      clockwork.Clock
	rng        func() float64
	httpClient *http.Client
	onOutcome  func(Outcome)

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inFlight atomic.Bool

	mu      sync.Mutex
	last    Outcome
	hasLast bool
}

// New validates cfg and wires the pipeline. An invalid configuration is a
// deployment error and is returned as ErrInvalidConfiguration.
func New(cfg Configuration, store state.Store, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfiguration)
	}
	protocol, _ := cfg.Protocol()
	endpoint, _ := cfg.EndpointURL()

	c := &Coordinator{
		cfg:      cfg,
		protocol: protocol,
		store:    store,
		log:      log.Logger,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		c.rng = r.Float64
	}
	c.log = c.log.With().Str("protocol", protocol.String()).Logger()

	c.gate = gate.New(gate.Config{
		Store:                 store,
		MinimumSubmitInterval: cfg.MinimumSubmitInterval,
		Clock:                 c.clock,
		Rand:                  c.rng,
		Logger:                c.log,
	})
	c.transport = transport.New(transport.Config{
		Endpoint:           endpoint.String(),
		Timeout:            c.timeout(),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		HTTPClient:         c.httpClient,
		Logger:             c.log,
	})
	c.ctx, c.cancel = context.WithCancel(context.Background())

	return c, nil
}

// Protocol returns the wire protocol in use.
func (c *Coordinator) Protocol() Protocol {
	return c.protocol
}

// Endpoint returns the collector URL.
func (c *Coordinator) Endpoint() string {
	return c.transport.Endpoint()
}

// Submit offers snap for submission and returns without waiting for the
// network. Gate denials, overlapping calls and failures are silent.
func (c *Coordinator) Submit(ctx context.Context, snap snapshot.Snapshot) {
	if c.ctx.Err() != nil {
		c.log.Debug().Msg("coordinator shut down, dropping snapshot")
		return
	}

	out := Outcome{
		CorrelationID: uuid.New().String(),
		At:            c.clock.Now(),
		Protocol:      c.protocol.Kind,
	}
	log := c.log.With().Str("correlation_id", out.CorrelationID).Logger()

	if !c.inFlight.CompareAndSwap(false, true) {
		log.Debug().Msg("submission already in progress, skipping")
		metrics.SubmitCalls.WithLabelValues(metrics.DecisionInProgress).Inc()
		out.Decision, out.Err = DecisionInProgress, ErrSubmissionInProgress
		c.record(out)
		return
	}

	handedOff := false
	defer func() {
		if !handedOff {
			c.inFlight.Store(false)
		}
	}()

	decision, at, err := c.gate.Evaluate(ctx)
	out.At = at
	if err != nil {
		log.Error().Err(err).Msg("rate limit gate failed")
		metrics.SubmitCalls.WithLabelValues(metrics.DecisionError).Inc()
		out.Decision, out.Err = DecisionFailed, err
		c.record(out)
		return
	}
	if decision == gate.Denied {
		metrics.SubmitCalls.WithLabelValues(metrics.DecisionGated).Inc()
		out.Decision = DecisionGated
		c.record(out)
		return
	}
	metrics.SubmitCalls.WithLabelValues(metrics.DecisionAdmitted).Inc()

	req, err := c.buildRequest(ctx, snap)
	if err != nil {
		log.Error().Err(err).Msg("could not build stats payload")
		metrics.SubmissionResults.WithLabelValues(c.protocol.String(), metrics.ResultEncodeError).Inc()
		out.Decision, out.Err = DecisionFailed, err
		c.record(out)
		return
	}
	req.CorrelationID = out.CorrelationID

	if !c.acquire() {
		log.Debug().Msg("coordinator shut down, dropping snapshot")
		return
	}

	if c.protocol.CommitsBeforeCall() {
		if err := c.store.SetLastSubmit(ctx, out.At); err != nil {
			c.wg.Done()
			log.Error().Err(err).Msg("could not record submit timestamp, not sending")
			metrics.SubmissionResults.WithLabelValues(c.protocol.String(), metrics.ResultCommitError).Inc()
			out.Decision, out.Err = DecisionFailed, err
			c.record(out)
			return
		}
	}

	handedOff = true
	metrics.SubmissionsInflight.Inc()
	go c.deliver(out, snap.Clone(), req, log)
}

// acquire registers a delivery with the wait group unless Shutdown has begun.
func (c *Coordinator) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return false
	}
	c.wg.Add(1)
	return true
}

func (c *Coordinator) buildRequest(ctx context.Context, snap snapshot.Snapshot) (transport.Request, error) {
	if !c.protocol.UsesPrevious() {
		body, err := payload.SignedChecksum(snap, c.protocol.Secret)
		if err != nil {
			return transport.Request{}, err
		}
		return transport.Request{Body: body}, nil
	}

	st, err := c.store.Load(ctx)
	if err != nil {
		return transport.Request{}, fmt.Errorf("load state: %w", err)
	}
	if st.LastSnapshot != nil && snap.Equal(st.LastSnapshot) {
		c.log.Debug().Msg("snapshot unchanged since last accepted submission")
	}
	body, err := payload.Diff(snap, st.LastSnapshot)
	if err != nil {
		return transport.Request{}, err
	}
	return transport.Request{Body: body, APIKey: c.protocol.APIKey, BatchID: st.LastBatchID}, nil
}

func (c *Coordinator) deliver(out Outcome, snap snapshot.Snapshot, req transport.Request, log zerolog.Logger) {
	defer c.wg.Done()
	defer metrics.SubmissionsInflight.Dec()
	defer c.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout())
	defer cancel()

	resp, err := c.transport.Post(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", c.transport.Endpoint()).Msg("stats submission failed")
		metrics.SubmissionResults.WithLabelValues(c.protocol.String(), metrics.ResultFailure).Inc()
		var se *transport.StatusError
		if errors.As(err, &se) {
			out.StatusCode = se.StatusCode
		}
		out.Decision, out.Err = DecisionFailed, err
		c.record(out)
		return
	}
	out.StatusCode = resp.StatusCode

	if !c.protocol.CommitsBeforeCall() {
		commit := state.Commit{Timestamp: out.At, BatchID: resp.BatchID, Snapshot: snap}
		if err := c.store.CommitSuccess(context.WithoutCancel(ctx), commit); err != nil {
			log.Error().Err(err).Msg("could not persist submission state")
			metrics.SubmissionResults.WithLabelValues(c.protocol.String(), metrics.ResultCommitError).Inc()
			out.Decision, out.Err = DecisionFailed, err
			c.record(out)
			return
		}
		out.BatchID = resp.BatchID
	}

	metrics.SubmissionResults.WithLabelValues(c.protocol.String(), metrics.ResultSuccess).Inc()
	metrics.LastSuccessTimestamp.Set(state.ToEpochSeconds(out.At))
	log.Info().Int("status", resp.StatusCode).Int("fields", len(snap)).Msg("stats submitted")

	out.Decision = DecisionSubmitted
	c.record(out)
}

func (c *Coordinator) record(out Outcome) {
	c.mu.Lock()
	c.last, c.hasLast = out, true
	c.mu.Unlock()

	if c.onOutcome != nil {
		c.onOutcome(out)
	}
}

// LastOutcome returns the outcome of the most recent Submit call.
func (c *Coordinator) LastOutcome() (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// Wait blocks until every handed-off submission has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Shutdown aborts in-flight submissions and waits for them, bounded by ctx.
// Submit calls after Shutdown are dropped.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.log.Info().Msg("stats coordinator shutdown initiated")
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info().Msg("stats coordinator shutdown complete")
	case <-ctx.Done():
		c.log.Warn().Msg("stats coordinator shutdown timeout")
	}
}

func (c *Coordinator) timeout() time.Duration {
	if c.cfg.Timeout > 0 {
		return c.cfg.Timeout
	}
	return transport.DefaultTimeout
}
