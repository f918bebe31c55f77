// SstableStore is the single point of contact between the LSM engine and the object store: it
// fetches metadata and blocks through caches, and owns the on-disk path layout (§4.6, §6.2).
package storage

import (
	"context"
	"flag"
	"fmt"

	"github.com/nobletooth/strata/pkg/cache"
	"github.com/nobletooth/strata/pkg/objectstore"
)

var metaCacheCapacity = flag.Int("sstable_meta_cache_capacity", 4096,
	"Maximum number of SSTable metadata entries to keep resident.")

// dataPath returns "{prefix}/data/{id:020}.data" per §6.2.
func dataPath(prefix string, id SstableID) string {
	return fmt.Sprintf("%s/data/%020d.data", prefix, uint64(id))
}

// metaPath returns "{prefix}/meta/{id:020}.meta" per §6.2.
func metaPath(prefix string, id SstableID) string {
	return fmt.Sprintf("%s/meta/%020d.meta", prefix, uint64(id))
}

// SstableStore owns an object store handle, a bounded metadata cache, and the shared block cache.
type SstableStore struct {
	prefix string
	store  objectstore.Store
	blocks *BlockCache
	metas  cache.Layer[SstableID, *SstableMeta]
}

// NewSstableStore constructs a store rooted at prefix, backed by store for both data and meta
// objects.
func NewSstableStore(ctx context.Context, prefix string, store objectstore.Store) *SstableStore {
	capacity := *metaCacheCapacity
	if capacity <= 0 {
		capacity = 1
	}
	metaLayer := cache.NewHyperClock[SstableID, *SstableMeta](ctx, capacity, *cacheTickInterval, nil)
	return &SstableStore{
		prefix: prefix,
		store:  store,
		blocks: NewBlockCache(ctx),
		metas:  metaLayer,
	}
}

// Put writes an SSTable's data then its metadata (data-first, meta-last: §4.6 rationale — a
// partial failure never exposes a data object whose meta is missing). On CacheFill, both caches
// are populated immediately.
func (s *SstableStore) Put(ctx context.Context, id SstableID, data []byte, meta *SstableMeta, policy CachePolicy) error {
	if err := s.store.Put(ctx, dataPath(s.prefix, id), data); err != nil {
		return fmt.Errorf("sstable store: put data: %w", err)
	}
	encodedMeta, err := meta.Encode()
	if err != nil {
		return fmt.Errorf("sstable store: encode meta: %w", err)
	}
	if err := s.store.Put(ctx, metaPath(s.prefix, id), encodedMeta); err != nil {
		return fmt.Errorf("sstable store: put meta: %w", err)
	}

	if policy == CacheFill {
		s.metas.Add(id, meta, *cacheTTL)
		for i, bm := range meta.BlockMetas {
			lo, hi := bm.DataRange()
			if hi > int64(len(data)) || lo < 0 {
				continue
			}
			block, decodeErr := DecodeBlock(data[lo:hi])
			if decodeErr == nil {
				s.blocks.layer.Add(blockCacheKey{sstableID: id, offset: uint32(i)}, block, *cacheTTL)
			}
		}
	}
	return nil
}

// Meta returns the cache-through metadata for id.
func (s *SstableStore) Meta(ctx context.Context, id SstableID) (*SstableMeta, error) {
	if meta, ok := s.metas.Get(id); ok {
		return meta, nil
	}
	raw, err := s.store.Get(ctx, metaPath(s.prefix, id))
	if err != nil {
		return nil, fmt.Errorf("sstable store: get meta: %w", err)
	}
	meta, err := DecodeSstableMeta(raw)
	if err != nil {
		return nil, err
	}
	s.metas.Add(id, meta, *cacheTTL)
	return meta, nil
}

// Block fetches the block at index within sstable id, going through the block cache (§4.5). A
// miss issues get_range over the block's data range and decodes it.
func (s *SstableStore) Block(ctx context.Context, id SstableID, index int, policy CachePolicy) (*Block, error) {
	meta, err := s.Meta(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(meta.BlockMetas) {
		return nil, fmt.Errorf("sstable store: block index %d out of range (table has %d blocks)", index, len(meta.BlockMetas))
	}
	bm := meta.BlockMetas[index]

	return s.blocks.GetOrFetch(id, uint32(index), policy, func() (*Block, error) {
		lo, hi := bm.DataRange()
		raw, err := s.store.GetRange(ctx, dataPath(s.prefix, id), lo, hi)
		if err != nil {
			return nil, fmt.Errorf("sstable store: fetch block: %w", err)
		}
		return DecodeBlock(raw)
	})
}

// Remove deletes an SSTable's objects, meta first so no reader can observe data without meta
// (§4.6 rationale), then purges the meta and block caches (every table's entries, as the cache
// layers have no per-key removal).
func (s *SstableStore) Remove(ctx context.Context, id SstableID) error {
	if err := s.store.Remove(ctx, metaPath(s.prefix, id)); err != nil {
		return fmt.Errorf("sstable store: remove meta: %w", err)
	}
	if err := s.store.Remove(ctx, dataPath(s.prefix, id)); err != nil {
		return fmt.Errorf("sstable store: remove data: %w", err)
	}
	s.metas.Purge()
	s.blocks.Purge()
	return nil
}
