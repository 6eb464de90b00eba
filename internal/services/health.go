package services

import (
	"sync"
	"time"
)

// ModelHealthCache remembers provider/model pairs that recently failed with
// a credential-style error (401/402/403) so the gateway can skip them until
// the entry expires. Per-process and best-effort only; billing correctness
// never depends on it.
type ModelHealthCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

func NewModelHealthCache(ttl time.Duration) *ModelHealthCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ModelHealthCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
	}
}

func healthKey(provider, model string) string {
	return provider + "/" + model
}

// MarkUnhealthy records a failure for the pair; the mark expires after the TTL.
func (c *ModelHealthCache) MarkUnhealthy(provider, model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[healthKey(provider, model)] = time.Now().Add(c.ttl)
}

// IsHealthy reports whether the pair has no live failure mark. Expired
// entries are purged on read.
func (c *ModelHealthCache) IsHealthy(provider, model string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := healthKey(provider, model)
	expiry, ok := c.entries[key]
	if !ok {
		return true
	}
	if time.Now().After(expiry) {
		delete(c.entries, key)
		return true
	}
	return false
}
