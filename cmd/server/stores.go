package main

import (
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	rlconfig "boxoffice/internal/ratelimit/config"
	"boxoffice/internal/ratelimit/metrics"
	"boxoffice/internal/ratelimit/ports"
	"boxoffice/internal/ratelimit/store/counter"
	"boxoffice/internal/ratelimit/store/penalty"
	"boxoffice/internal/ratelimit/workers/cleanup"
)

type stores struct {
	counters  ports.CounterStore
	penalties ports.PenaltyStore
	// cleanup builds the sweeper for in-memory stores; nil when Redis TTLs
	// expire state on their own.
	cleanup func(log *slog.Logger, m *metrics.Metrics) *cleanup.Service
}

// buildStores selects Redis-backed stores when a client is configured and
// in-memory stores otherwise.
func buildStores(client goredis.UniversalClient, namespace string, cfg *rlconfig.Config) (stores, error) {
	if client != nil {
		counters, err := counter.NewRedisCounterStore(client, counter.WithNamespace(namespace))
		if err != nil {
			return stores{}, fmt.Errorf("build redis counter store: %w", err)
		}
		penalties, err := penalty.NewRedisPenaltyStore(client, namespace)
		if err != nil {
			return stores{}, fmt.Errorf("build redis penalty store: %w", err)
		}
		return stores{counters: counters, penalties: penalties}, nil
	}

	counters := counter.NewInMemoryCounterStore()
	penalties, err := penalty.NewInMemoryPenaltyStore(cfg.Penalty.MaxTracked)
	if err != nil {
		return stores{}, fmt.Errorf("build penalty store: %w", err)
	}
	return stores{
		counters:  counters,
		penalties: penalties,
		cleanup: func(log *slog.Logger, m *metrics.Metrics) *cleanup.Service {
			return cleanup.New(
				cleanup.WithLogger(log),
				cleanup.WithMetrics(m),
				cleanup.WithCounters(counters),
				cleanup.WithPenalties(penalties, cfg.Penalty.Decay),
			)
		},
	}, nil
}
