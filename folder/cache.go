package folder

import (
	"sync"

	"github.com/creativeprojects/imapview/lib"
)

// DefaultCacheSize bounds the status cache when no size is configured.
const DefaultCacheSize = 1000

type cacheKey struct {
	user        string
	changeToken string
}

// Cache maps (user, change token) to a computed folder snapshot. Change
// tokens are unbounded in cardinality over the server lifetime, so the
// cache evicts its oldest insertion once full, regardless of use.
//
// The cache is an injected component owned by the Service; create one per
// server, not per session.
type Cache struct {
	mu      sync.RWMutex
	maxSize int
	entries map[cacheKey]*Snapshot
	order   []cacheKey
	log     lib.Logger
}

func NewCache(maxSize int) *Cache {
	return NewCacheWithLogger(maxSize, nil)
}

func NewCacheWithLogger(maxSize int, logger lib.Logger) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	if logger == nil {
		logger = &lib.NoLog{}
	}
	return &Cache{
		maxSize: maxSize,
		entries: make(map[cacheKey]*Snapshot),
		log:     logger,
	}
}

func (c *Cache) get(key cacheKey) *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[key]
}

// putIfAbsent inserts a freshly computed snapshot unless a concurrent
// writer beat us to the same key, in which case the existing snapshot
// wins: for a given token every reader must observe the same snapshot
// object.
func (c *Cache) putIfAbsent(key cacheKey, snapshot *Snapshot) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.log.Printf("folder cache: discarding racing snapshot, changeToken=%s", key.changeToken)
		return existing
	}
	c.entries[key] = snapshot
	c.order = append(c.order, key)
	for len(c.entries) > c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	return snapshot
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
