package cleanup

import (
	"context"
	"log/slog"
	"time"

	"boxoffice/internal/ratelimit/metrics"
)

// CleanupResult contains the results of a cleanup run.
type CleanupResult struct {
	CountersSwept   int
	PenaltiesPruned int
	TrackedCounters int
	Duration        time.Duration
}

// CounterSweeper is the in-memory counter store. Redis expires keys natively
// and needs no sweeping.
type CounterSweeper interface {
	Sweep(now time.Time) int
	Len() int
}

// PenaltyPruner is the in-memory penalty store.
type PenaltyPruner interface {
	Prune(now time.Time, decay time.Duration) int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCounters sweeps expired windows from counters on every run.
func WithCounters(counters CounterSweeper) Option {
	return func(s *Service) {
		s.counters = counters
	}
}

// WithPenalties prunes records that have fully decayed under decay.
func WithPenalties(penalties PenaltyPruner, decay time.Duration) Option {
	return func(s *Service) {
		s.penalties = penalties
		s.decay = decay
	}
}

// WithClock overrides the time source used as the sweep cutoff.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// Service reclaims memory held by expired windows and forgiven penalties.
// Correctness never depends on it: stores treat stale entries as absent.
type Service struct {
	counters  CounterSweeper
	penalties PenaltyPruner
	decay     time.Duration
	logger    *slog.Logger
	interval  time.Duration
	metrics   *metrics.Metrics
	clock     func() time.Time
}

func New(opts ...Option) *Service {
	service := &Service{
		logger:   slog.Default(),
		interval: time.Minute,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Start runs a cleanup every interval until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			startTime := time.Now()
			res, err := s.RunOnce(ctx)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Error("ratelimit_cleanup_failed",
					"error", err,
					"duration_ms", duration.Milliseconds(),
				)
				if s.metrics != nil {
					s.metrics.IncrementCleanupRuns("error")
					s.metrics.ObserveCleanupDuration(duration.Seconds())
				}
				continue
			}

			res.Duration = duration

			s.logger.Debug("ratelimit_cleanup_completed",
				"counters_swept", res.CountersSwept,
				"penalties_pruned", res.PenaltiesPruned,
				"tracked_counters", res.TrackedCounters,
				"duration_ms", duration.Milliseconds(),
			)

			if s.metrics != nil {
				s.metrics.AddCountersSwept(res.CountersSwept)
				s.metrics.AddPenaltiesPruned(res.PenaltiesPruned)
				s.metrics.SetTrackedCounters(res.TrackedCounters)
				s.metrics.IncrementCleanupRuns("success")
				s.metrics.ObserveCleanupDuration(duration.Seconds())
			}

		case <-ctx.Done():
			s.logger.Info("ratelimit cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single cleanup run. Logging is handled by the caller (Start).
func (s *Service) RunOnce(ctx context.Context) (*CleanupResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.clock()
	res := &CleanupResult{}
	if s.counters != nil {
		res.CountersSwept = s.counters.Sweep(now)
		res.TrackedCounters = s.counters.Len()
	}
	if s.penalties != nil {
		res.PenaltiesPruned = s.penalties.Prune(now, s.decay)
	}
	return res, nil
}
