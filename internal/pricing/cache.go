package pricing

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"positionscope/internal/model"
)

// Cache memoizes oracle quotes for a TTL. Unavailable quotes are cached the
// same as real ones so a delisted token does not hammer the upstream, and
// concurrent misses for one token collapse into a single upstream fetch.
type Cache struct {
	oracle Oracle
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	quote     model.PriceQuote
	fetchedAt time.Time
}

// NewCache wraps oracle with a TTL cache.
func NewCache(oracle Oracle, ttl time.Duration) *Cache {
	return &Cache{
		oracle:  oracle,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// GetPrice returns the cached quote when fresh, otherwise fetches and
// stores. A newer fetch always replaces an older entry; fetch errors leave
// the cache untouched.
func (c *Cache) GetPrice(ctx context.Context, tokenID string) (model.PriceQuote, error) {
	if quote, ok := c.fresh(tokenID); ok {
		return quote, nil
	}

	value, err, _ := c.group.Do(tokenID, func() (interface{}, error) {
		// Another caller may have filled the entry while this one waited
		// on the flight group.
		if quote, ok := c.fresh(tokenID); ok {
			return quote, nil
		}
		quote, err := c.oracle.GetPrice(ctx, tokenID)
		if err != nil {
			return model.PriceQuote{}, err
		}
		c.mu.Lock()
		c.entries[tokenID] = cacheEntry{quote: quote, fetchedAt: c.now()}
		c.mu.Unlock()
		return quote, nil
	})
	if err != nil {
		return model.PriceQuote{}, err
	}
	return value.(model.PriceQuote), nil
}

func (c *Cache) fresh(tokenID string) (model.PriceQuote, bool) {
	c.mu.RLock()
	entry, ok := c.entries[tokenID]
	c.mu.RUnlock()
	if !ok || c.now().Sub(entry.fetchedAt) >= c.ttl {
		return model.PriceQuote{}, false
	}
	return entry.quote, true
}
