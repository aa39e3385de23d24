package fetcher

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached memoises successful quotes so a combined run asking for the same
// symbol twice hits the providers once. Failures are never cached.
type Cached struct {
	source PriceSource
	cache  *cache.Cache
}

// NewCached wraps source with a TTL cache. A non-positive ttl returns source unchanged.
func NewCached(source PriceSource, ttl time.Duration) PriceSource {
	if ttl <= 0 {
		return source
	}
	return &Cached{source: source, cache: cache.New(ttl, 2*ttl)}
}

// Quote implements PriceSource.
func (c *Cached) Quote(ctx context.Context, symbol string) (Quote, error) {
	key := strings.ToUpper(symbol)
	if v, ok := c.cache.Get(key); ok {
		return v.(Quote), nil
	}

	q, err := c.source.Quote(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	c.cache.SetDefault(key, q)
	return q, nil
}

var _ PriceSource = (*Cached)(nil)
