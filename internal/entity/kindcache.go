package entity

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/roach88/polyref/internal/model"
)

// KindCache memoises IdentifierKind lookups of a wrapped Registry. All other
// Registry methods pass through.
//
// Identifier kinds never change for a registered type, so a zero TTL keeps
// entries for the life of the process.
type KindCache struct {
	Registry
	cache *cache.Cache
}

// NewKindCache wraps r. A ttl of zero disables expiry.
func NewKindCache(r Registry, ttl time.Duration) *KindCache {
	expiry := ttl
	cleanup := 2 * ttl
	if ttl <= 0 {
		expiry = cache.NoExpiration
		cleanup = 0
	}
	return &KindCache{
		Registry: r,
		cache:    cache.New(expiry, cleanup),
	}
}

// IdentifierKind returns the memoised kind, asking the wrapped registry on a
// miss. Lookup errors are not cached.
func (c *KindCache) IdentifierKind(id string) (model.IdentifierKind, error) {
	key := model.CanonicalTypeID(id)
	if v, found := c.cache.Get(key); found {
		return v.(model.IdentifierKind), nil
	}

	kind, err := c.Registry.IdentifierKind(key)
	if err != nil {
		return 0, err
	}
	c.cache.Set(key, kind, cache.DefaultExpiration)
	return kind, nil
}

// Forget drops a memoised kind, used when an entity type is re-registered.
func (c *KindCache) Forget(id string) {
	c.cache.Delete(model.CanonicalTypeID(id))
}
