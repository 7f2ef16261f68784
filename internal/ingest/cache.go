package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/starford/mdimport/internal/apperr"
)

type nameFunc func(ctx context.Context, name string) (int64, error)

// nameCache resolves category or tag names to ids through an expiring LRU
// in front of the store.
type nameCache struct {
	kind   string
	lru    *expirable.LRU[string, int64]
	lookup nameFunc
	ensure nameFunc
}

func newNameCache(kind string, size int, ttl time.Duration, lookup, ensure nameFunc) *nameCache {
	return &nameCache{
		kind:   kind,
		lru:    expirable.NewLRU[string, int64](size, nil, ttl),
		lookup: lookup,
		ensure: ensure,
	}
}

// resolve returns the id for name. Missing names are created when create
// is set, otherwise apperr.ErrNotFound is returned. Misses are not cached.
func (c *nameCache) resolve(ctx context.Context, name string, create bool) (int64, error) {
	if id, ok := c.lru.Get(name); ok {
		lookupCacheTotal.WithLabelValues(c.kind, "hit").Inc()
		return id, nil
	}
	lookupCacheTotal.WithLabelValues(c.kind, "miss").Inc()

	id, err := c.lookup(ctx, name)
	if errors.Is(err, apperr.ErrNotFound) && create {
		id, err = c.ensure(ctx, name)
	}
	if err != nil {
		return 0, err
	}
	c.lru.Add(name, id)
	return id, nil
}
