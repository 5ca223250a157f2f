package cache

/*

Entries are keyed by the question section of a query and hold the response
bytes that follow its transaction ID. They never expire and are never
evicted; answers stay for the life of the process or until Flush.

Every operation is a single map access, so one sync.Mutex is enough. The
copy-on-write atomic.Pointer map used for read heavy caches would copy the
whole map on each upstream answer.

*/

import (
	"sync"
	"sync/atomic"
)

type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

type Cache struct {
	mu sync.Mutex
	m  map[string][]byte

	hits   atomic.Uint64
	misses atomic.Uint64
}

func New() *Cache {
	return &Cache{m: make(map[string][]byte, 1024)}
}

// Get returns the stored answer for fingerprint. The slice is shared with
// the cache and must not be modified.
func (c *Cache) Get(fingerprint []byte) ([]byte, bool) {
	c.mu.Lock()
	answer, ok := c.m[string(fingerprint)]
	c.mu.Unlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return answer, ok
}

// Put stores a copy of answer under fingerprint, replacing any previous
// entry. Concurrent writers for the same key: last write wins.
func (c *Cache) Put(fingerprint, answer []byte) {
	value := make([]byte, len(answer))
	copy(value, answer)

	c.mu.Lock()
	c.m[string(fingerprint)] = value
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// Flush drops every entry and returns how many were dropped.
func (c *Cache) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.m)
	c.m = make(map[string][]byte, 1024)
	return n
}

func (c *Cache) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
