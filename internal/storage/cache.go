package storage

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/grendelpress/manuscript-vault/internal/telemetry"
)

// MasterCache keeps recently stamped master files in memory so bursts of
// downloads for one book read the object store once. Masters are immutable per
// storage key; re-uploads go through Evict.
type MasterCache struct {
	backend Storage
	lru     *expirable.LRU[string, []byte]
}

// NewMasterCache fronts backend with an LRU of at most size entries, each kept
// for ttl after it is added. A size of 0 disables caching.
func NewMasterCache(backend Storage, size int, ttl time.Duration) *MasterCache {
	c := &MasterCache{backend: backend}
	if size > 0 {
		c.lru = expirable.NewLRU[string, []byte](size, nil, ttl)
	}
	return c
}

// Fetch returns the master stored under key, from memory when possible.
// Missing objects surface as ErrNotFound from the backend.
func (c *MasterCache) Fetch(ctx context.Context, key string) ([]byte, error) {
	if c.lru != nil {
		if data, ok := c.lru.Get(key); ok {
			telemetry.MasterCacheHitsTotal.Inc()
			return data, nil
		}
		telemetry.MasterCacheMissesTotal.Inc()
	}

	data, err := ReadAll(ctx, c.backend, key)
	if err != nil {
		return nil, err
	}
	if c.lru != nil {
		c.lru.Add(key, data)
	}
	return data, nil
}

// Evict drops key so the next Fetch reads the object store.
func (c *MasterCache) Evict(key string) {
	if c.lru != nil {
		c.lru.Remove(key)
	}
}

// Len reports the number of cached masters.
func (c *MasterCache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
