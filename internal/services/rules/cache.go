package rules

import (
	"sync"
	"time"

	"github.com/kusuridheeraj/titan-grid/internal/models"
)

const defaultMaxCacheEntries = 10000

// ruleCache holds dynamic lookup results per endpoint, including "no rule" results
type ruleCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	rule    *models.RateLimitRule
	expires time.Time
}

func newRuleCache(ttl time.Duration, maxEntries int) *ruleCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxCacheEntries
	}
	return &ruleCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// get returns the cached result and whether it is present and fresh
func (c *ruleCache) get(endpoint string) (*models.RateLimitRule, bool) {
	c.mu.RLock()
	e, ok := c.entries[endpoint]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return nil, false
	}
	return e.rule, true
}

func (c *ruleCache) put(endpoint string, rule *models.RateLimitRule) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[endpoint] = cacheEntry{rule: rule, expires: now.Add(c.ttl)}
}

// evictLocked drops expired entries, or everything when none have expired
func (c *ruleCache) evictLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) >= c.maxEntries {
		c.entries = make(map[string]cacheEntry)
	}
}

func (c *ruleCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *ruleCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
