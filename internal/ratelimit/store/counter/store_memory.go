package counter

import (
	"context"
	"sync"
	"time"

	"boxoffice/internal/ratelimit/models"
	psync "boxoffice/pkg/platform/sync"
	"boxoffice/pkg/requestcontext"
)

// InMemoryCounterStore implements fixed-window counting for a single process.
// Each key is guarded by its shard of a ShardedMutex, so increments on one key
// are linearizable while unrelated keys proceed in parallel.
type InMemoryCounterStore struct {
	locks   *psync.ShardedMutex
	windows sync.Map // key -> *models.WindowCounter, mutated only under locks.Lock(key)
}

// NewInMemoryCounterStore creates a new in-memory counter store.
func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{
		locks: psync.NewShardedMutex(),
	}
}

// IncrementAndCheck increments the window at key, starting a new window when
// none exists or the current one has expired at the request time.
func (s *InMemoryCounterStore) IncrementAndCheck(ctx context.Context, key string, window time.Duration) (models.WindowCounter, error) {
	if err := ctx.Err(); err != nil {
		return models.WindowCounter{}, err
	}
	now := requestcontext.Now(ctx)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if v, ok := s.windows.Load(key); ok {
		c := v.(*models.WindowCounter)
		if !c.IsExpired(now) {
			c.Count++
			return *c, nil
		}
	}

	c := &models.WindowCounter{
		Count:       1,
		WindowStart: now,
		ExpiresAt:   now.Add(window),
	}
	s.windows.Store(key, c)
	return *c, nil
}

// Get returns the live window at key.
func (s *InMemoryCounterStore) Get(ctx context.Context, key string) (models.WindowCounter, bool, error) {
	now := requestcontext.Now(ctx)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	v, ok := s.windows.Load(key)
	if !ok {
		return models.WindowCounter{}, false, nil
	}
	c := v.(*models.WindowCounter)
	if c.IsExpired(now) {
		return models.WindowCounter{}, false, nil
	}
	return *c, true, nil
}

// Sweep deletes every window that has expired at now and returns how many
// were removed. Expired windows are already ignored by reads; sweeping only
// bounds memory.
func (s *InMemoryCounterStore) Sweep(now time.Time) int {
	removed := 0
	s.windows.Range(func(k, _ any) bool {
		key := k.(string)
		s.locks.Lock(key)
		if v, ok := s.windows.Load(key); ok && v.(*models.WindowCounter).IsExpired(now) {
			s.windows.Delete(key)
			removed++
		}
		s.locks.Unlock(key)
		return true
	})
	return removed
}

// Len returns the number of tracked windows, live or expired.
func (s *InMemoryCounterStore) Len() int {
	n := 0
	s.windows.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
