package sync

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 64

// ShardedMutex distributes locking across shards chosen by a hash of the key,
// so unrelated counter keys rarely contend on the same lock.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// NewShardedMutex creates a new ShardedMutex.
func NewShardedMutex() *ShardedMutex {
	return &ShardedMutex{}
}

// Lock acquires the lock for the given key's shard.
func (m *ShardedMutex) Lock(key string) {
	m.shards[shardFor(key)].Lock()
}

// Unlock releases the lock for the given key's shard.
func (m *ShardedMutex) Unlock(key string) {
	m.shards[shardFor(key)].Unlock()
}

func shardFor(key string) int {
	return int(xxhash.Sum64String(key) % shardCount)
}
