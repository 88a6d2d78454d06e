// Package syncutil provides in-process locking keyed by string.
package syncutil

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
)

const shardCount = 256

// KeyedMutex is a fixed-size pool of channel-based mutexes addressed by key.
// Memory stays bounded regardless of how many keys are seen; keys that hash
// to the same shard share a lock. Waiting honours context cancellation.
type KeyedMutex struct {
	shards [shardCount]chan struct{}
	once   sync.Once
}

// NewKeyedMutex creates a ready-to-use KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	m := &KeyedMutex{}
	m.init()
	return m
}

func (m *KeyedMutex) init() {
	m.once.Do(func() {
		for i := range m.shards {
			m.shards[i] = make(chan struct{}, 1)
			m.shards[i] <- struct{}{}
		}
	})
}

// Lock acquires the locks for all keys and returns a function releasing them.
// Shards are taken in ascending order so two callers locking overlapping key
// sets cannot deadlock. If ctx ends while waiting, every shard already taken
// is released and ctx.Err() is returned.
func (m *KeyedMutex) Lock(ctx context.Context, keys ...string) (func(), error) {
	m.init()

	idx := m.shardSet(keys)
	held := make([]uint32, 0, len(idx))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			m.shards[held[i]] <- struct{}{}
		}
	}

	for _, i := range idx {
		select {
		case <-m.shards[i]:
			held = append(held, i)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// shardSet returns the distinct shard indexes for keys, sorted ascending.
func (m *KeyedMutex) shardSet(keys []string) []uint32 {
	seen := make(map[uint32]struct{}, len(keys))
	out := make([]uint32, 0, len(keys))
	for _, k := range keys {
		i := shardOf(k)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

func shardOf(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
