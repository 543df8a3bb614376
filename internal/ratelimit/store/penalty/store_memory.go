package penalty

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"boxoffice/internal/ratelimit/models"
	"boxoffice/pkg/requestcontext"
)

// InMemoryPenaltyStore keeps penalty records in a bounded LRU. When full, the
// least recently penalised client is forgotten, which can only shorten its
// next retry-after.
type InMemoryPenaltyStore struct {
	mu      sync.Mutex
	records *lru.Cache[string, models.PenaltyRecord]
}

// NewInMemoryPenaltyStore creates a store tracking at most maxTracked clients.
func NewInMemoryPenaltyStore(maxTracked int) (*InMemoryPenaltyStore, error) {
	if maxTracked <= 0 {
		return nil, errors.New("maxTracked must be positive")
	}
	cache, err := lru.New[string, models.PenaltyRecord](maxTracked)
	if err != nil {
		return nil, err
	}
	return &InMemoryPenaltyStore{records: cache}, nil
}

func (s *InMemoryPenaltyStore) RecordViolation(ctx context.Context, key string, decay time.Duration) (models.PenaltyRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.PenaltyRecord{}, err
	}
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _ := s.records.Peek(key)
	rec = rec.Decayed(now, decay)
	rec.Violations++
	rec.LastViolationAt = now
	s.records.Add(key, rec)
	return rec, nil
}

func (s *InMemoryPenaltyStore) Get(ctx context.Context, key string, decay time.Duration) (models.PenaltyRecord, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records.Peek(key)
	if !ok {
		return models.PenaltyRecord{}, nil
	}
	decayed := rec.Decayed(now, decay)
	switch {
	case decayed.Violations == 0:
		s.records.Remove(key)
	case decayed.Violations != rec.Violations:
		s.records.Add(key, decayed)
	}
	return decayed, nil
}

// Prune drops every record that has fully decayed at now and returns how many
// were removed.
func (s *InMemoryPenaltyStore) Prune(now time.Time, decay time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range s.records.Keys() {
		rec, ok := s.records.Peek(key)
		if ok && rec.Decayed(now, decay).Violations == 0 {
			s.records.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (s *InMemoryPenaltyStore) Len() int {
	return s.records.Len()
}
