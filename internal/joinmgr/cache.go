package joinmgr

import (
	"time"

	"github.com/bluele/gcache"

	"github.com/geoserve/joins/internal/jointable"
)

// cacheKey is the (collectionId, id, mtime) key the Design Notes (§9)
// call for: decoded JoinTables are cached, but keyed so that a
// replaced or deleted table can never be served stale.
type cacheKey struct {
	collectionID string
	id           string
	modUnixNano  int64
}

// tableCache is a bounded LRU of decoded JoinTables, built on
// bluele/gcache (a teacher dependency) per spec Design Notes §9: "key
// the cache by (id, mtime) and invalidate on every Remove/cleanup."
type tableCache struct {
	gc gcache.Cache
}

func newTableCache(size int) *tableCache {
	return &tableCache{
		gc: gcache.New(size).LRU().Build(),
	}
}

func (c *tableCache) get(key cacheKey) (jointable.JoinTable, bool) {
	v, err := c.gc.Get(key)
	if err != nil {
		return jointable.JoinTable{}, false
	}
	return v.(jointable.JoinTable), true
}

func (c *tableCache) set(key cacheKey, table jointable.JoinTable) {
	_ = c.gc.SetWithExpire(key, table, 10*time.Minute)
}

// invalidate drops every cached entry for (collectionId, id),
// regardless of mtime, so a Remove or retention deletion can never
// leave a stale entry reachable.
func (c *tableCache) invalidate(collectionID, id string) {
	for _, k := range c.gc.Keys(false) {
		ck, ok := k.(cacheKey)
		if ok && ck.collectionID == collectionID && ck.id == id {
			c.gc.Remove(k)
		}
	}
}
