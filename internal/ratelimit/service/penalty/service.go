// Package penalty implements penalty escalation for repeat rate-limit offenders.
//
// Each violation raises the client's multiplier to min(cap, base^violations).
// The multiplier scales the retry-after returned on denial, never the quota.
// Violations decay one per elapsed decay period and are forgiven lazily on the
// next read, so no background sweep is required for correctness.
package penalty

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"boxoffice/internal/ratelimit/config"
	"boxoffice/internal/ratelimit/models"
	"boxoffice/internal/ratelimit/ports"
	dErrors "boxoffice/pkg/domain-errors"
)

type Tracker struct {
	store  ports.PenaltyStore
	logger *slog.Logger
	config config.PenaltyConfig
}

type Option func(*Tracker)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

func WithConfig(cfg config.PenaltyConfig) Option {
	return func(t *Tracker) {
		t.config = cfg
	}
}

func New(store ports.PenaltyStore, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("penalty store is required")
	}

	t := &Tracker{
		store:  store,
		config: config.DefaultConfig().Penalty,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.config.Base < 1 || t.config.Cap < 1 {
		return nil, fmt.Errorf("penalty base and cap must be at least 1")
	}
	return t, nil
}

// Multiplier returns min(cap, base^violations); zero violations yields 1.
func (t *Tracker) Multiplier(violations int) float64 {
	if violations <= 0 {
		return 1
	}
	return math.Min(t.config.Cap, math.Pow(t.config.Base, float64(violations)))
}

// RecordViolation adds one violation for client and returns the updated record.
func (t *Tracker) RecordViolation(ctx context.Context, client models.ClientIdentity) (models.PenaltyRecord, error) {
	rec, err := t.store.RecordViolation(ctx, models.NewPenaltyKey(client), t.config.Decay)
	if err != nil {
		return models.PenaltyRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record violation")
	}
	rec.ClientID = client
	rec.Multiplier = t.Multiplier(rec.Violations)

	if t.logger != nil {
		t.logger.DebugContext(ctx, "penalty violation recorded",
			"violations", rec.Violations,
			"multiplier", rec.Multiplier,
		)
	}
	return rec, nil
}

// GetMultiplier returns the client's current multiplier after decay.
func (t *Tracker) GetMultiplier(ctx context.Context, client models.ClientIdentity) (float64, error) {
	rec, err := t.store.Get(ctx, models.NewPenaltyKey(client), t.config.Decay)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get penalty record")
	}
	return t.Multiplier(rec.Violations), nil
}
