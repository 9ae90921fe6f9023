package folder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheGetMissing(t *testing.T) {
	cache := NewCache(10)
	assert.Nil(t, cache.get(cacheKey{user: "alice", changeToken: "nope"}))
}

func TestCacheKeyedByUserAndToken(t *testing.T) {
	cache := NewCache(10)
	snapshot := &Snapshot{ChangeToken: "t1"}
	cache.putIfAbsent(cacheKey{user: "alice", changeToken: "t1"}, snapshot)

	assert.Same(t, snapshot, cache.get(cacheKey{user: "alice", changeToken: "t1"}))
	assert.Nil(t, cache.get(cacheKey{user: "bob", changeToken: "t1"}))
	assert.Nil(t, cache.get(cacheKey{user: "alice", changeToken: "t2"}))
}

func TestCacheFirstWriterWins(t *testing.T) {
	cache := NewCache(10)
	key := cacheKey{user: "alice", changeToken: "t1"}
	first := &Snapshot{Messages: 1}
	second := &Snapshot{Messages: 2}

	assert.Same(t, first, cache.putIfAbsent(key, first))
	// a racing writer computing the same token loses
	assert.Same(t, first, cache.putIfAbsent(key, second))
	assert.Same(t, first, cache.get(key))
	assert.Equal(t, 1, cache.Len())
}

func TestCacheEvictsOldestInsertion(t *testing.T) {
	cache := NewCache(3)
	for i := 0; i < 3; i++ {
		cache.putIfAbsent(cacheKey{user: "alice", changeToken: fmt.Sprintf("t%d", i)}, &Snapshot{})
	}
	// touching the oldest entry does not protect it
	cache.get(cacheKey{user: "alice", changeToken: "t0"})

	cache.putIfAbsent(cacheKey{user: "alice", changeToken: "t3"}, &Snapshot{})
	assert.Equal(t, 3, cache.Len())
	assert.Nil(t, cache.get(cacheKey{user: "alice", changeToken: "t0"}))
	assert.NotNil(t, cache.get(cacheKey{user: "alice", changeToken: "t3"}))
}

func TestCacheDefaultSize(t *testing.T) {
	cache := NewCache(0)
	assert.Equal(t, DefaultCacheSize, cache.maxSize)
}
