package analytics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statsKeyPrefix = "rls"
	statsTTL       = 24 * time.Hour
	minuteLayout   = "200601021504"
)

// RedisSink mirrors decision counts into one hash per UTC minute, so several
// instances sharing a Redis can be read as one fleet. Fields are
// "<endpoint>:<outcome>" and "<endpoint>:penalized".
type RedisSink struct {
	client    redis.UniversalClient
	namespace string
}

func NewRedisSink(client redis.UniversalClient, namespace string) (*RedisSink, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisSink{client: client, namespace: namespace}, nil
}

func (s *RedisSink) key(minute time.Time) string {
	k := statsKeyPrefix + ":" + minute.UTC().Format(minuteLayout)
	if s.namespace == "" {
		return k
	}
	return s.namespace + ":" + k
}

// Flush adds the batch to the per-minute hashes in one pipeline.
func (s *RedisSink) Flush(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	buckets := make(map[string]map[string]int64)
	for _, ev := range events {
		key := s.key(ev.At)
		fields, ok := buckets[key]
		if !ok {
			fields = make(map[string]int64)
			buckets[key] = fields
		}
		fields[string(ev.EndpointType)+":"+ev.Outcome]++
		if ev.Penalized {
			fields[string(ev.EndpointType)+":penalized"]++
		}
	}

	pipe := s.client.Pipeline()
	for key, fields := range buckets {
		for field, n := range fields {
			pipe.HIncrBy(ctx, key, field, n)
		}
		pipe.Expire(ctx, key, statsTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flush analytics: %w", err)
	}
	return nil
}

// Minute returns the counts recorded for the minute containing at.
func (s *RedisSink) Minute(ctx context.Context, at time.Time) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, s.key(at.Truncate(time.Minute))).Result()
	if err != nil {
		return nil, fmt.Errorf("read analytics: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse analytics field %s: %w", field, err)
		}
		out[field] = n
	}
	return out, nil
}
