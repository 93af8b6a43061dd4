package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

const (
	defaultLocalCounters = 1e5
	defaultLocalMaxCost  = 64 << 20
	defaultLocalBuffer   = 64
)

// LocalCache keeps sessions in process memory. It only gives continuity
// within a single instance.
type LocalCache struct {
	cache *ristretto.Cache
}

func NewLocalCache(maxCost int64) (*LocalCache, error) {
	if maxCost <= 0 {
		maxCost = defaultLocalMaxCost
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: defaultLocalCounters,
		MaxCost:     maxCost,
		BufferItems: defaultLocalBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("create local cache: %w", err)
	}
	return &LocalCache{cache: cache}, nil
}

func (c *LocalCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), b...), nil
}

func (c *LocalCache) SetEX(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := append([]byte(nil), value...)
	if !c.cache.SetWithTTL(key, stored, int64(len(stored))+1, ttl) {
		return fmt.Errorf("local cache rejected key %q", key)
	}
	// make the write visible to the next Get
	c.cache.Wait()
	return nil
}

func (c *LocalCache) Ping(context.Context) error {
	return nil
}

func (c *LocalCache) Close() {
	c.cache.Close()
}
