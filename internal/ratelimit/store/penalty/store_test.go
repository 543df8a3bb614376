package penalty

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"boxoffice/internal/ratelimit/ports"
	"boxoffice/pkg/requestcontext"
	"boxoffice/pkg/testutil"
)

const decay = 15 * time.Minute

type PenaltyStoreSuite struct {
	suite.Suite
	newStore func() ports.PenaltyStore
	store    ports.PenaltyStore
}

func TestInMemoryPenaltyStore(t *testing.T) {
	suite.Run(t, &PenaltyStoreSuite{newStore: func() ports.PenaltyStore {
		store, err := NewInMemoryPenaltyStore(100)
		if err != nil {
			t.Fatal(err)
		}
		return store
	}})
}

func TestRedisPenaltyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	suite.Run(t, &PenaltyStoreSuite{newStore: func() ports.PenaltyStore {
		mr.FlushAll()
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		store, err := NewRedisPenaltyStore(client, "test")
		if err != nil {
			t.Fatal(err)
		}
		return store
	}})
}

func (s *PenaltyStoreSuite) SetupTest() {
	s.store = s.newStore()
}

func at(d time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), testutil.At(d))
}

func (s *PenaltyStoreSuite) TestUnknownClientHasNoViolations() {
	rec, err := s.store.Get(at(0), "rlp:ip:203.0.113.7", decay)
	s.Require().NoError(err)
	s.Equal(0, rec.Violations)
}

func (s *PenaltyStoreSuite) TestRecordViolationAccumulates() {
	const key = "rlp:ip:203.0.113.7"

	for i := 1; i <= 3; i++ {
		rec, err := s.store.RecordViolation(at(time.Duration(i)*time.Minute), key, decay)
		s.Require().NoError(err)
		s.Equal(i, rec.Violations)
		s.True(rec.LastViolationAt.Equal(testutil.At(time.Duration(i) * time.Minute)))
	}

	rec, err := s.store.Get(at(10*time.Minute), key, decay)
	s.Require().NoError(err)
	s.Equal(3, rec.Violations)
}

func (s *PenaltyStoreSuite) TestDecayIsStepwise() {
	const key = "rlp:device:abc"
	for range 3 {
		_, err := s.store.RecordViolation(at(0), key, decay)
		s.Require().NoError(err)
	}

	s.Run("one period forgives one violation", func() {
		rec, err := s.store.Get(at(decay+time.Second), key, decay)
		s.Require().NoError(err)
		s.Equal(2, rec.Violations)
	})

	s.Run("a violation after partial decay builds on the remainder", func() {
		rec, err := s.store.RecordViolation(at(2*decay+time.Second), key, decay)
		s.Require().NoError(err)
		s.Equal(2, rec.Violations)
	})

	s.Run("sustained quiet decays fully", func() {
		rec, err := s.store.Get(at(10*decay), key, decay)
		s.Require().NoError(err)
		s.Equal(0, rec.Violations)
	})
}

func TestInMemoryPenaltyStore_BoundedAndPrunable(t *testing.T) {
	store, err := NewInMemoryPenaltyStore(2)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"a", "b", "c"} {
		if _, err := store.RecordViolation(at(0), key, decay); err != nil {
			t.Fatal(err)
		}
	}
	if store.Len() != 2 {
		t.Fatalf("Len = %d, want 2", store.Len())
	}

	if removed := store.Prune(testutil.At(decay), decay); removed != 2 {
		t.Fatalf("Prune removed %d, want 2", removed)
	}
	if store.Len() != 0 {
		t.Fatalf("Len = %d after prune, want 0", store.Len())
	}

	if _, err := NewInMemoryPenaltyStore(0); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}

func TestRedisPenaltyStore_KeyExpiresWithDecay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store, err := NewRedisPenaltyStore(client, "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.RecordViolation(at(0), "rlp:ip:a", decay); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RecordViolation(at(0), "rlp:ip:a", decay); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("rlp:ip:a"); ttl != 2*decay {
		t.Fatalf("TTL = %v, want %v", ttl, 2*decay)
	}
}

var (
	_ ports.PenaltyStore = (*InMemoryPenaltyStore)(nil)
	_ ports.PenaltyStore = (*RedisPenaltyStore)(nil)
)
