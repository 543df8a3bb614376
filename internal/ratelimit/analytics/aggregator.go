// Package analytics keeps process-wide admission counters and mirrors them to
// Prometheus and, optionally, to a shared Redis hash.
//
// Counters are advisory. They reset on restart and may drop events under
// sustained overload rather than slow the request path.
package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"boxoffice/internal/ratelimit/metrics"
	"boxoffice/internal/ratelimit/models"
	"boxoffice/pkg/requestcontext"
)

const (
	defaultQueueSize     = 4096
	defaultFlushInterval = 5 * time.Second
)

// Event is one recorded decision as seen by sinks.
type Event struct {
	EndpointType models.EndpointType
	Outcome      string
	Penalized    bool
	Multiplier   float64
	At           time.Time
}

// Sink persists batches of events outside the process.
type Sink interface {
	Flush(ctx context.Context, events []Event) error
}

type Aggregator struct {
	allowed   atomic.Int64
	blocked   atomic.Int64
	penalties atomic.Int64

	events        chan Event
	sink          Sink
	metrics       *metrics.Metrics
	logger        *slog.Logger
	flushInterval time.Duration
}

type Option func(*Aggregator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

func WithSink(sink Sink) Option {
	return func(a *Aggregator) {
		a.sink = sink
	}
}

func WithQueueSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.events = make(chan Event, n)
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.flushInterval = d
		}
	}
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		events:        make(chan Event, defaultQueueSize),
		logger:        slog.Default(),
		flushInterval: defaultFlushInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record counts decision and queues it for Run. It never blocks.
func (a *Aggregator) Record(ctx context.Context, decision models.Decision, penalized bool) {
	outcome := metrics.OutcomeAllowed
	switch {
	case decision.Allowed:
		a.allowed.Add(1)
	case decision.Reason == models.ReasonBlacklisted:
		outcome = metrics.OutcomeBlacklisted
		a.blocked.Add(1)
	default:
		outcome = metrics.OutcomeBlocked
		a.blocked.Add(1)
	}
	if penalized {
		a.penalties.Add(1)
	}

	select {
	case a.events <- Event{
		EndpointType: decision.EndpointType,
		Outcome:      outcome,
		Penalized:    penalized,
		Multiplier:   decision.PenaltyMultiplier,
		At:           requestcontext.Now(ctx),
	}:
	default:
		if a.metrics != nil {
			a.metrics.IncrementAnalyticsDropped()
		}
	}
}

// Snapshot returns the counters recorded since process start.
func (a *Aggregator) Snapshot() models.AnalyticsSnapshot {
	return models.AnalyticsSnapshot{
		Allowed:   a.allowed.Load(),
		Blocked:   a.blocked.Load(),
		Penalties: a.penalties.Load(),
	}
}

// Run drains queued events into metrics and the sink until ctx is cancelled,
// then flushes what is left.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	var batch []Event
	for {
		select {
		case ev := <-a.events:
			batch = a.consume(batch, ev)
		case <-ticker.C:
			batch = a.flush(ctx, batch)
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.events:
					batch = a.consume(batch, ev)
				default:
					a.flush(context.WithoutCancel(ctx), batch)
					return nil
				}
			}
		}
	}
}

func (a *Aggregator) consume(batch []Event, ev Event) []Event {
	if a.metrics != nil {
		a.metrics.IncrementDecision(string(ev.EndpointType), ev.Outcome)
		if ev.Penalized {
			a.metrics.IncrementPenalty(string(ev.EndpointType), ev.Multiplier)
		}
	}
	if a.sink == nil {
		return batch
	}
	return append(batch, ev)
}

func (a *Aggregator) flush(ctx context.Context, batch []Event) []Event {
	if a.sink == nil || len(batch) == 0 {
		return batch
	}
	if err := a.sink.Flush(ctx, batch); err != nil {
		a.logger.WarnContext(ctx, "analytics flush failed, dropping batch",
			"error", err,
			"events", len(batch),
		)
	}
	return batch[:0]
}
