package penalty

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"boxoffice/internal/ratelimit/models"
	"boxoffice/pkg/requestcontext"
)

//go:embed lua/violation.lua
var violationLuaSource string

var violationScript = redis.NewScript(violationLuaSource)

// RedisPenaltyStore shares penalty records between instances. Decay and
// increment happen in one script; a record's TTL is the time it takes to
// decay fully, so idle offenders disappear on their own.
type RedisPenaltyStore struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisPenaltyStore creates a Redis-backed penalty store. namespace may be empty.
func NewRedisPenaltyStore(client redis.UniversalClient, namespace string) (*RedisPenaltyStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisPenaltyStore{client: client, namespace: namespace}, nil
}

func (s *RedisPenaltyStore) RecordViolation(ctx context.Context, key string, decay time.Duration) (models.PenaltyRecord, error) {
	return s.run(ctx, key, decay, 1)
}

func (s *RedisPenaltyStore) Get(ctx context.Context, key string, decay time.Duration) (models.PenaltyRecord, error) {
	return s.run(ctx, key, decay, 0)
}

func (s *RedisPenaltyStore) run(ctx context.Context, key string, decay time.Duration, record int) (models.PenaltyRecord, error) {
	if s.namespace != "" {
		key = s.namespace + ":" + key
	}
	now := requestcontext.Now(ctx).UnixMilli()
	res, err := violationScript.Run(ctx, s.client, []string{key}, now, decay.Milliseconds(), record).Int64Slice()
	if err != nil {
		return models.PenaltyRecord{}, fmt.Errorf("penalty script: %w", err)
	}
	if len(res) != 2 {
		return models.PenaltyRecord{}, fmt.Errorf("penalty script: unexpected result %v", res)
	}
	return models.PenaltyRecord{
		Violations:      int(res[0]),
		LastViolationAt: time.UnixMilli(res[1]).UTC(),
	}, nil
}
