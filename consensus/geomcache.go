package consensus

import (
	"tailscale.com/util/lru"
)

// DefaultCacheSize bounds the geometry cache of a single Reduce call.
const DefaultCacheSize = 4096

const maxCachedParams = 6

type geomKey struct {
	shape  string
	n      int
	params [maxCachedParams]float64
}

// geomCache memoizes region construction for parameter tuples. It is
// created per invocation and is not safe for concurrent use.
type geomCache struct {
	regions lru.Cache[geomKey, region]
	hits    int
	misses  int
}

func newGeomCache(size int) *geomCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c := &geomCache{}
	c.regions.MaxEntries = size
	return c
}

// region returns the convex region of params under s, building it on a
// miss. A nil cache always builds.
func (c *geomCache) region(s *paramShape, params []float64) region {
	if c == nil || len(params) > maxCachedParams {
		return newRegion(s.outline(params))
	}
	key := geomKey{shape: s.name, n: len(params)}
	copy(key.params[:], params)
	if r, ok := c.regions.GetOk(key); ok {
		c.hits++
		return r
	}
	c.misses++
	r := newRegion(s.outline(params))
	c.regions.Set(key, r)
	return r
}

// Len reports the number of cached regions.
func (c *geomCache) Len() int {
	return c.regions.Len()
}
