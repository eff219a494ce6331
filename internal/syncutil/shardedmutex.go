// Package syncutil provides keyed locking primitives.
package syncutil

import (
	"hash/fnv"
	"sync"
)

const shardCount = 256

// ShardedMutex hands out per-key mutexes from a fixed pool, so memory
// stays bounded no matter how many distinct keys pass through. Keys
// hashing to the same shard contend with each other, which is harmless
// for short critical sections.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock blocks until the shard for key is held and returns the matching
// unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := &s.shards[shardIndex(key)]
	mu.Lock()
	return mu.Unlock
}

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
