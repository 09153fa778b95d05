package auth

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cache is a TTL cache of verified keys. Uses sync.Map for lock-free reads
// on the hot path.
//
// Stale-while-revalidate: an expired entry is still returned, and the first
// reader to see it is told to refresh it in the background.
type Cache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
	clock clockwork.Clock
}

type cacheEntry struct {
	principal  *Principal
	expiresAt  time.Time
	refreshing atomic.Bool
}

// NewCache creates a cache with the given TTL. A nil clock uses real time.
func NewCache(ttl time.Duration, clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{ttl: ttl, clock: clock}
}

// GetResult holds the result of a cache lookup.
type GetResult struct {
	Principal    *Principal
	Hit          bool // a value was found, fresh or stale
	NeedsRefresh bool // the entry expired and this caller should refresh it
}

// Get looks up apiKey.
//
//   - Fresh hit:  {Principal, Hit=true,  NeedsRefresh=false}
//   - Stale hit:  {Principal, Hit=true,  NeedsRefresh=true} for exactly one caller
//   - Miss:       {nil,       Hit=false, NeedsRefresh=false}
func (c *Cache) Get(apiKey string) GetResult {
	val, ok := c.store.Load(apiKey)
	if !ok {
		return GetResult{}
	}
	entry := val.(*cacheEntry)

	if c.clock.Now().Before(entry.expiresAt) {
		return GetResult{Principal: entry.principal, Hit: true}
	}

	return GetResult{
		Principal:    entry.principal,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

func (c *Cache) Set(apiKey string, p *Principal) {
	c.store.Store(apiKey, &cacheEntry{
		principal: p,
		expiresAt: c.clock.Now().Add(c.ttl),
	})
}

func (c *Cache) Delete(apiKey string) {
	c.store.Delete(apiKey)
}
