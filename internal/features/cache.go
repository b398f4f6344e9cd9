package features

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// RegimeCache memoizes the most recent realized-volatility regime
// classification per (symbol, windowNs). Calculator instances that share
// one cache and have the same symbol and WindowNs reuse a stored
// classification until it expires instead of redoing the stat.StdDev
// pass; while an entry is fresh, a Calculator returns it without looking
// at its own return history.
type RegimeCache struct {
	c *gocache.Cache
}

// NewRegimeCache builds a cache whose entries expire after ttl (and are
// swept every 2*ttl), matching the teacher's go-cache construction
// convention of a fixed expiration plus a cleanup interval.
func NewRegimeCache(ttl time.Duration) *RegimeCache {
	return &RegimeCache{c: gocache.New(ttl, 2*ttl)}
}

func regimeCacheKey(symbol uint32, windowNs uint64) string {
	return fmt.Sprintf("%d:%d", symbol, windowNs)
}

// Get returns the cached regime for (symbol, windowNs) if still fresh.
func (rc *RegimeCache) Get(symbol uint32, windowNs uint64) (Regime, bool) {
	v, ok := rc.c.Get(regimeCacheKey(symbol, windowNs))
	if !ok {
		return RegimeUnclassified, false
	}
	return v.(Regime), true
}

// Set stores regime for (symbol, windowNs) using the cache's default TTL.
func (rc *RegimeCache) Set(symbol uint32, windowNs uint64, regime Regime) {
	rc.c.SetDefault(regimeCacheKey(symbol, windowNs), regime)
}
