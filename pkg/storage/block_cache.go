// The block cache sits between the SSTable store and the object store: a bounded, shared cache
// of decoded blocks with single-flight fill semantics (§4.5) so concurrent misses for the same
// block share one fetch instead of each re-reading and re-decoding it.
package storage

import (
	"context"
	"flag"
	"runtime"
	"sync"
	"time"

	"github.com/nobletooth/strata/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheEnabled  = flag.Bool("enable_block_cache", true, "Enable the shared SSTable block cache.")
	cacheCapacity = flag.Int("block_cache_capacity", 1024,
		"The maximum number of blocks to keep in the shared block cache; 0 or negative disables the cache.")
	cacheShardCount = flag.Int("block_cache_shard_count", runtime.NumCPU(),
		"The number of shards to keep in the block cache; 0 or negative disables the cache.")
	cacheTTL = flag.Duration("block_cache_ttl", 5*time.Minute,
		"The TTL for each block entry in the shared block cache.")
	cacheTickInterval = flag.Duration("block_cache_tick_interval", time.Second,
		"The clock tick interval for the shared block cache.")

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sstable_block_cache_lookups_total",
		Help: "Total number of SSTable block cache lookups.",
	}, []string{"status"} /* hit | miss */)
	cacheEvictedBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sstable_block_cache_evicted_blocks_total",
		Help: "Total number of SSTable block cache evictions.",
	})
)

// CachePolicy controls whether a cache miss populates the cache on read (§4.5 glossary).
type CachePolicy int

const (
	CacheFill CachePolicy = iota
	CacheNotFill
	CacheDisable
)

// blockCacheKey addresses one block within one table's data object.
type blockCacheKey struct {
	sstableID SstableID
	offset    uint32
}

// inflight tracks one in-progress fetch so concurrent misses on the same key await the same call
// instead of issuing duplicate object-store reads (§9 "single-flight cache fills").
type inflight struct {
	done  chan struct{}
	block *Block
	err   error
}

// BlockCache is the bounded, shared, single-flight cache of decoded blocks.
type BlockCache struct {
	layer cache.Layer[blockCacheKey, *Block]
	ttl   time.Duration

	mux       sync.Mutex
	inflights map[blockCacheKey]*inflight
}

// NewBlockCache builds a block cache according to the configured flags: sharded HyperClock when
// enabled, a no-op cache otherwise.
func NewBlockCache(ctx context.Context) *BlockCache {
	newShard := func() cache.Layer[blockCacheKey, *Block] {
		return cache.NewHyperClock[blockCacheKey, *Block](ctx, max(*cacheCapacity/max(*cacheShardCount, 1), 1),
			*cacheTickInterval, func(_ blockCacheKey, _ *Block) { cacheEvictedBlocks.Inc() })
	}

	var layer cache.Layer[blockCacheKey, *Block] = cache.NewNoOp[blockCacheKey, *Block]()
	if *cacheEnabled && *cacheCapacity > 0 && *cacheShardCount > 0 {
		if *cacheShardCount > 1 {
			layer = cache.NewShardedCache(newShard, *cacheShardCount)
		} else {
			layer = newShard()
		}
	}

	return &BlockCache{layer: layer, ttl: *cacheTTL, inflights: make(map[blockCacheKey]*inflight)}
}

// GetOrFetch returns the cached block for (sstableID, offset), fetching it with fetch on a miss.
// Concurrent misses on the same key share one call to fetch; errors are never cached (§4.5).
func (c *BlockCache) GetOrFetch(sstableID SstableID, offset uint32, policy CachePolicy, fetch func() (*Block, error)) (*Block, error) {
	key := blockCacheKey{sstableID: sstableID, offset: offset}

	if policy != CacheDisable {
		if block, ok := c.layer.Get(key); ok {
			cacheLookups.WithLabelValues("hit").Inc()
			return block, nil
		}
	}
	cacheLookups.WithLabelValues("miss").Inc()

	c.mux.Lock()
	if f, ok := c.inflights[key]; ok {
		c.mux.Unlock()
		<-f.done
		return f.block, f.err
	}
	f := &inflight{done: make(chan struct{})}
	c.inflights[key] = f
	c.mux.Unlock()

	block, err := fetch()
	f.block, f.err = block, err
	close(f.done)

	c.mux.Lock()
	delete(c.inflights, key)
	c.mux.Unlock()

	if err == nil && policy == CacheFill {
		c.layer.Add(key, block, c.ttl)
	}
	return block, err
}

// Purge clears every cached block; used by SstableStore.Remove.
func (c *BlockCache) Purge() { c.layer.Purge() }
