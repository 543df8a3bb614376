package sync

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedMutex_LockUnlock(t *testing.T) {
	m := NewShardedMutex()

	m.Lock("rl:auth:ip:203.0.113.7")
	m.Unlock("rl:auth:ip:203.0.113.7")

	m.Lock("")
	m.Unlock("")
}

func TestShardedMutex_SameKeySerializes(t *testing.T) {
	m := NewShardedMutex()
	counter := 0
	var wg sync.WaitGroup

	for range 200 {
		wg.Go(func() {
			m.Lock("rl:payment:device:abc")
			defer m.Unlock("rl:payment:device:abc")
			counter++
		})
	}
	wg.Wait()

	assert.Equal(t, 200, counter)
}

func TestShardedMutex_ShardDistribution(t *testing.T) {
	shards := make(map[int]bool)
	for i := range 32 {
		shards[shardFor(fmt.Sprintf("rl:general:ip:10.0.0.%d", i))] = true
	}

	assert.GreaterOrEqual(t, len(shards), 8, "expected keys to distribute across multiple shards")
	assert.Equal(t, shardFor("stable"), shardFor("stable"))
}
