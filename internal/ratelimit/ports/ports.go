// Package ports defines the interfaces the admission engine consumes.
// Adapters live under store/; mocks are generated into /mocks/ratelimit.
package ports

//go:generate mockgen -source=ports.go -destination=../../../mocks/ratelimit/mock_ports.go -package=mocks

import (
	"context"
	"time"

	"boxoffice/internal/ratelimit/models"
)

// CounterStore is the shared fixed-window counter substrate.
type CounterStore interface {
	// IncrementAndCheck atomically increments the counter at key and returns
	// the post-increment window. The first increment, and the first one at or
	// after ExpiresAt, start a new window of length window with Count=1.
	IncrementAndCheck(ctx context.Context, key string, window time.Duration) (models.WindowCounter, error)

	// Get returns the live window at key, or ok=false when none exists.
	Get(ctx context.Context, key string) (counter models.WindowCounter, ok bool, err error)
}

// PenaltyStore persists violation history per client.
type PenaltyStore interface {
	// RecordViolation decays the record at key by decay, adds one violation
	// and returns the updated record.
	RecordViolation(ctx context.Context, key string, decay time.Duration) (models.PenaltyRecord, error)

	// Get returns the decayed record at key. A client with no history has
	// zero violations.
	Get(ctx context.Context, key string, decay time.Duration) (models.PenaltyRecord, error)
}

// AccessList answers whitelist and blacklist membership.
type AccessList interface {
	IsWhitelisted(ctx context.Context, client models.ClientIdentity) (bool, error)
	IsBlacklisted(ctx context.Context, client models.ClientIdentity) (bool, error)
}

// DecisionRecorder receives every decision for analytics. It must not block.
type DecisionRecorder interface {
	Record(ctx context.Context, decision models.Decision, penalized bool)
}
