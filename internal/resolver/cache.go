package resolver

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"fillScope/internal/chain"
	"fillScope/internal/metrics"
	"fillScope/internal/model"
)

// BlockFetcher loads a block header by number. ok is false when the node
// has no block at that height.
type BlockFetcher interface {
	BlockByNumber(ctx context.Context, number uint64) (model.BlockRef, bool, error)
}

// BlockCache memoizes block timestamps for a single run. Concurrent lookups
// of the same block share one fetch.
type BlockCache struct {
	fetcher BlockFetcher
	metrics *metrics.Metrics

	mu      sync.RWMutex
	blocks  map[uint64]model.BlockRef
	missing map[uint64]struct{}
	group   singleflight.Group
}

func NewBlockCache(fetcher BlockFetcher, m *metrics.Metrics) *BlockCache {
	return &BlockCache{
		fetcher: fetcher,
		metrics: m,
		blocks:  make(map[uint64]model.BlockRef),
		missing: make(map[uint64]struct{}),
	}
}

// GetOrFetch returns the cached block or fetches it. A block the node does
// not have yields chain.ErrBlockNotFound; it is remembered as missing, never
// as a zero timestamp.
func (c *BlockCache) GetOrFetch(ctx context.Context, number uint64) (model.BlockRef, error) {
	if ref, ok, err := c.lookup(number); ok || err != nil {
		c.metrics.CacheLookup(true)
		return ref, err
	}
	c.metrics.CacheLookup(false)

	v, err, _ := c.group.Do(strconv.FormatUint(number, 10), func() (interface{}, error) {
		if ref, ok, err := c.lookup(number); ok || err != nil {
			return ref, err
		}

		ref, found, err := c.fetcher.BlockByNumber(ctx, number)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if !found {
			c.missing[number] = struct{}{}
			return nil, fmt.Errorf("block %d: %w", number, chain.ErrBlockNotFound)
		}
		c.blocks[number] = ref
		return ref, nil
	})
	if err != nil {
		return model.BlockRef{}, err
	}
	return v.(model.BlockRef), nil
}

// Len returns the number of cached blocks.
func (c *BlockCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

func (c *BlockCache) lookup(number uint64) (model.BlockRef, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ref, ok := c.blocks[number]; ok {
		return ref, true, nil
	}
	if _, ok := c.missing[number]; ok {
		return model.BlockRef{}, false, fmt.Errorf("block %d: %w", number, chain.ErrBlockNotFound)
	}
	return model.BlockRef{}, false, nil
}
