// Package relay forwards inbound messages to the overlay server and keeps
// the ones that could not be delivered for later redelivery.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/osa030/onair/internal/domain/fault"
	"github.com/osa030/onair/internal/infra/fallback"
)

// Errors
var (
	ErrDrainInProgress = errors.New("drain already in progress")
	ErrForwarderClosed = errors.New("forwarder is closed")
)

// Sink delivers one payload downstream and returns the response body.
type Sink interface {
	Deliver(ctx context.Context, payload []byte) ([]byte, error)
}

// Queue is the durable store for undelivered payloads.
type Queue interface {
	Append(ctx context.Context, payload []byte) (fallback.Entry, error)
	Snapshot(ctx context.Context) ([]fallback.Entry, error)
	Replace(ctx context.Context, through uint64, keep []fallback.Entry) error
	Len(ctx context.Context) (int, error)
}

// Config holds forwarder configuration.
type Config struct {
	ForwardTimeout time.Duration
	DrainRate      float64 // Redeliveries per second; <= 0 means unlimited
}

// Result is the outcome of a single Forward call.
type Result struct {
	Delivered bool
	Queued    bool
	Body      json.RawMessage // Downstream response when delivered
	Reason    string          // Delivery failure when queued
}

// DrainReport summarizes one Drain call. TotalRetried counts attempted
// entries only; entries left untouched by an interrupted drain are Untried.
type DrainReport struct {
	TotalRetried int `json:"totalRetried"`
	Delivered    int `json:"delivered"`
	FailedCount  int `json:"failedCount"`
	Untried      int `json:"untried"`
}

// Forwarder relays payloads to a Sink, falling back to a Queue.
type Forwarder struct {
	sink    Sink
	queue   Queue
	cfg     Config
	limiter *rate.Limiter

	drainMu sync.Mutex
	closed  atomic.Bool
}

// NewForwarder creates a new forwarder.
func NewForwarder(sink Sink, queue Queue, cfg Config) *Forwarder {
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = 5 * time.Second
	}
	limit := rate.Inf
	if cfg.DrainRate > 0 {
		limit = rate.Limit(cfg.DrainRate)
	}
	return &Forwarder{
		sink:    sink,
		queue:   queue,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Forward makes one delivery attempt. A failed attempt is queued and reported
// in the result; only a failure to queue is returned as an error.
func (f *Forwarder) Forward(ctx context.Context, payload []byte) (Result, error) {
	if err := validate(payload); err != nil {
		return Result{}, err
	}

	body, err := f.deliver(ctx, payload)
	if err == nil {
		return Result{Delivered: true, Body: body}, nil
	}

	reason := err.Error()
	zlog.Warn().Msgf("relay: delivery failed, queueing: %v", err)

	// The payload is accepted even if the caller goes away now.
	entry, qerr := f.queue.Append(context.WithoutCancel(ctx), payload)
	if qerr != nil {
		zlog.Error().Msgf("relay: failed to queue payload: %v", qerr)
		return Result{Reason: reason}, qerr
	}

	zlog.Info().Msgf("relay: payload queued: seq=%d", entry.Seq)
	return Result{Queued: true, Reason: reason}, nil
}

// Drain redelivers every queued entry in FIFO order. Delivered entries are
// removed; failed ones stay at the head of the queue. Entries queued while the
// drain runs are kept behind them.
func (f *Forwarder) Drain(ctx context.Context) (DrainReport, error) {
	if !f.drainMu.TryLock() {
		return DrainReport{}, ErrDrainInProgress
	}
	defer f.drainMu.Unlock()
	if f.closed.Load() {
		return DrainReport{}, ErrForwarderClosed
	}

	snapshot, err := f.queue.Snapshot(ctx)
	if err != nil {
		return DrainReport{}, err
	}
	if len(snapshot) == 0 {
		return DrainReport{}, nil
	}

	zlog.Info().Msgf("relay: drain started: entries=%d", len(snapshot))

	var failed, keep []fallback.Entry
	var stopErr error
	attempted := 0
	for i, e := range snapshot {
		if err := f.limiter.Wait(ctx); err != nil {
			keep = snapshot[i:]
			stopErr = errors.Wrap(err, "drain interrupted")
			break
		}
		attempted++
		if _, err := f.deliver(ctx, e.Data); err != nil {
			zlog.Warn().Msgf("relay: redelivery failed: seq=%d err=%v", e.Seq, err)
			failed = append(failed, e)
		}
	}

	// Failed entries go back ahead of the untried ones, preserving FIFO order.
	through := lo.Max(lo.Map(snapshot, func(e fallback.Entry, _ int) uint64 { return e.Seq }))
	if err := f.queue.Replace(context.WithoutCancel(ctx), through, append(failed, keep...)); err != nil {
		return DrainReport{}, err
	}

	report := DrainReport{
		TotalRetried: attempted,
		Delivered:    attempted - len(failed),
		FailedCount:  len(failed),
		Untried:      len(keep),
	}
	zlog.Info().Msgf("relay: drain finished: retried=%d delivered=%d failed=%d untried=%d",
		report.TotalRetried, report.Delivered, report.FailedCount, report.Untried)
	return report, stopErr
}

// Close refuses further drains and waits for a running one to finish.
// Forward keeps working so late requests are still captured.
func (f *Forwarder) Close() {
	f.closed.Store(true)
	f.drainMu.Lock()
	defer f.drainMu.Unlock()
}

// Pending returns the number of queued entries.
func (f *Forwarder) Pending(ctx context.Context) (int, error) {
	return f.queue.Len(ctx)
}

func (f *Forwarder) deliver(ctx context.Context, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ForwardTimeout)
	defer cancel()

	body, err := f.sink.Deliver(ctx, payload)
	if err != nil {
		if errors.Is(err, fault.ErrDownstreamUnavailable) {
			return nil, err
		}
		return nil, fault.Downstream(err, "delivery failed")
	}
	return body, nil
}

// validate accepts a non-empty JSON object.
func validate(payload []byte) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return fault.Malformed("empty payload")
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return fault.Malformed("payload is not a JSON object")
	}
	return nil
}
