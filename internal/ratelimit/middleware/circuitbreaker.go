package middleware

import (
	"context"
	"log/slog"

	"boxoffice/internal/ratelimit/metrics"
	"boxoffice/internal/ratelimit/observability"
	"boxoffice/pkg/platform/circuit"
)

// newStoreBreaker tracks consecutive admission failures. While it is open,
// responses carry X-RateLimit-Status: degraded so callers can tell that limits
// are not being enforced normally. Checks keep running either way; the
// breaker only reports degradation.
func newStoreBreaker(logger *slog.Logger, m *metrics.Metrics) *circuit.Breaker {
	return circuit.New("ratelimit-store",
		circuit.WithFailureThreshold(5),
		circuit.WithSuccessThreshold(3),
		circuit.WithStateListener(func(name string, to circuit.State) {
			if m != nil {
				m.SetDegraded(to == circuit.StateOpen)
			}
			event := observability.EventRecovered
			level := slog.LevelInfo
			if to == circuit.StateOpen {
				event = observability.EventDegraded
				level = slog.LevelError
			}
			observability.LogAudit(context.Background(), logger, level, event,
				"breaker", name,
				"state", to.String(),
			)
		}),
	)
}
