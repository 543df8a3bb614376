package counter

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"boxoffice/internal/ratelimit/models"
	"boxoffice/pkg/requestcontext"
)

//go:embed lua/increment.lua
var incrementLuaSource string

var incrementScript = redis.NewScript(incrementLuaSource)

// RedisCounterStore implements fixed-window counting on a shared Redis.
// The increment runs as one Lua script, so concurrent instances never both
// observe the same pre-increment count. Windows are computed from the
// request clock; Redis TTL only reclaims idle keys.
type RedisCounterStore struct {
	client    redis.UniversalClient
	namespace string
}

// RedisOption configures a RedisCounterStore.
type RedisOption func(*RedisCounterStore)

// WithNamespace prefixes every key, so several deployments can share one Redis.
func WithNamespace(ns string) RedisOption {
	return func(s *RedisCounterStore) {
		s.namespace = ns
	}
}

// NewRedisCounterStore creates a Redis-backed counter store.
func NewRedisCounterStore(client redis.UniversalClient, opts ...RedisOption) (*RedisCounterStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	s := &RedisCounterStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisCounterStore) key(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}

// IncrementAndCheck atomically increments the window at key.
func (s *RedisCounterStore) IncrementAndCheck(ctx context.Context, key string, window time.Duration) (models.WindowCounter, error) {
	now := requestcontext.Now(ctx).UnixMilli()
	res, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, now, window.Milliseconds()).Int64Slice()
	if err != nil {
		return models.WindowCounter{}, fmt.Errorf("increment counter: %w", err)
	}
	if len(res) != 3 {
		return models.WindowCounter{}, fmt.Errorf("increment counter: unexpected script result %v", res)
	}
	return models.WindowCounter{
		Count:       res[0],
		WindowStart: time.UnixMilli(res[1]).UTC(),
		ExpiresAt:   time.UnixMilli(res[2]).UTC(),
	}, nil
}

// Get returns the live window at key.
func (s *RedisCounterStore) Get(ctx context.Context, key string) (models.WindowCounter, bool, error) {
	vals, err := s.client.HMGet(ctx, s.key(key), "count", "start", "expires").Result()
	if err != nil {
		return models.WindowCounter{}, false, fmt.Errorf("get counter: %w", err)
	}
	nums := make([]int64, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			return models.WindowCounter{}, false, nil
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return models.WindowCounter{}, false, fmt.Errorf("get counter: corrupt field: %w", err)
		}
		nums[i] = n
	}

	c := models.WindowCounter{
		Count:       nums[0],
		WindowStart: time.UnixMilli(nums[1]).UTC(),
		ExpiresAt:   time.UnixMilli(nums[2]).UTC(),
	}
	if c.IsExpired(requestcontext.Now(ctx)) {
		return models.WindowCounter{}, false, nil
	}
	return c, true, nil
}
