// Package sessioncache holds the per-session token usage the long-context
// classifier consults when a request's own estimate undershoots but the
// conversation is already running long. It is the one piece of mutable
// state the router touches, so it has to behave correctly under concurrent
// requests and it has to evict in true least-recently-used order: an
// arbitrary-eviction cache can quietly drop the entry for a session that is
// still active while keeping one nobody has touched in an hour.
package sessioncache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/corvidlabs/modelgate/internal/universal"
)

// DefaultCapacity bounds how many sessions' usage the cache remembers at
// once.
const DefaultCapacity = 1000

// Cache is a thread-safe, bounded, true-LRU map from session id to that
// session's last reported token usage.
type Cache struct {
	lru *lru.Cache[string, universal.SessionUsage]
}

// New builds a Cache with the given capacity. A non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l, err := lru.New[string, universal.SessionUsage](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0, which is excluded above.
		panic(err)
	}
	return &Cache{lru: l}
}

// Get returns the last known usage for a session, and whether one was
// recorded. A hit refreshes the entry's recency.
func (c *Cache) Get(sessionID string) (universal.SessionUsage, bool) {
	if sessionID == "" {
		return universal.SessionUsage{}, false
	}
	return c.lru.Get(sessionID)
}

// Put records a session's latest reported usage, evicting the least
// recently used entry if the cache is at capacity.
func (c *Cache) Put(sessionID string, usage universal.SessionUsage) {
	if sessionID == "" {
		return
	}
	c.lru.Add(sessionID, usage)
}

// Len reports how many sessions are currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}
