package iterator

import (
	"context"
	"sort"

	"github.com/nobletooth/strata/pkg/storage"
)

// SstableIterator walks an SSTable's blocks in order via its store, binary-searching block_metas
// by last_key to find a seek target's home block and falling through to the next block's first
// entry when the target falls strictly between two blocks (§4.8).
type SstableIterator struct {
	ctx    context.Context
	store  *storage.SstableStore
	id     storage.SstableID
	meta   *storage.SstableMeta
	policy storage.CachePolicy

	blockIx int
	block   *BlockIterator
}

var _ Iterator = (*SstableIterator)(nil)

// NewSstableIterator constructs an iterator over the table identified by id.
func NewSstableIterator(ctx context.Context, store *storage.SstableStore, id storage.SstableID, policy storage.CachePolicy) (*SstableIterator, error) {
	meta, err := store.Meta(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SstableIterator{ctx: ctx, store: store, id: id, meta: meta, policy: policy, blockIx: -1}, nil
}

func (it *SstableIterator) loadBlock(index int) error {
	block, err := it.store.Block(it.ctx, it.id, index, it.policy)
	if err != nil {
		return err
	}
	it.blockIx = index
	it.block = NewBlockIterator(block)
	return nil
}

// findBlock returns the index of the first block whose last key is >= target, or len(BlockMetas)
// if target is past every block's range.
func (it *SstableIterator) findBlock(target []byte) int {
	metas := it.meta.BlockMetas
	return sort.Search(len(metas), func(i int) bool {
		return compareBytes(metas[i].LastKey, target) >= 0
	})
}

func (it *SstableIterator) Seek(s Seek) (bool, error) {
	n := len(it.meta.BlockMetas)
	switch s.Kind {
	case SeekFirst:
		if n == 0 {
			it.blockIx, it.block = n, nil
			return false, nil
		}
		if err := it.loadBlock(0); err != nil {
			return false, err
		}
		found, err := it.block.Seek(First())
		return found, err
	case SeekLast:
		if n == 0 {
			it.blockIx, it.block = n, nil
			return false, nil
		}
		if err := it.loadBlock(n - 1); err != nil {
			return false, err
		}
		found, err := it.block.Seek(Last())
		return found, err
	case SeekRandomForward:
		idx := it.findBlock(s.Target)
		if idx >= n {
			it.blockIx, it.block = n, nil
			return false, nil
		}
		if err := it.loadBlock(idx); err != nil {
			return false, err
		}
		found, err := it.block.Seek(s)
		if err != nil {
			return false, err
		}
		if !it.block.IsValid() && idx+1 < n {
			// target <= block_metas[idx].LastKey guarantees an in-block hit; this only guards
			// against an inconsistent meta, falling through to the next block's first entry.
			if err := it.loadBlock(idx + 1); err != nil {
				return false, err
			}
			found, err = it.block.Seek(First())
			return found && compareBytes(it.block.Key(), s.Target) == 0, err
		}
		return found, nil
	case SeekRandomBackward:
		idx := it.findBlock(s.Target)
		if idx >= n {
			idx = n - 1
		}
		if idx < 0 {
			it.blockIx, it.block = -1, nil
			return false, nil
		}
		if err := it.loadBlock(idx); err != nil {
			return false, err
		}
		found, err := it.block.Seek(s)
		if err != nil {
			return false, err
		}
		if !it.block.IsValid() && idx > 0 {
			if err := it.loadBlock(idx - 1); err != nil {
				return false, err
			}
			_, err = it.block.Seek(Last())
			return false, err
		}
		return found, nil
	}
	return false, nil
}

func (it *SstableIterator) Next() error {
	requireValid("sstable_iterator", it.IsValid())
	if err := it.block.Next(); err != nil {
		return err
	}
	if it.block.IsValid() {
		return nil
	}
	if it.blockIx+1 >= len(it.meta.BlockMetas) {
		it.blockIx = len(it.meta.BlockMetas)
		it.block = nil
		return nil
	}
	if err := it.loadBlock(it.blockIx + 1); err != nil {
		return err
	}
	_, err := it.block.Seek(First())
	return err
}

func (it *SstableIterator) Prev() error {
	requireValid("sstable_iterator", it.IsValid())
	if err := it.block.Prev(); err != nil {
		return err
	}
	if it.block.IsValid() {
		return nil
	}
	if it.blockIx-1 < 0 {
		it.blockIx = -1
		it.block = nil
		return nil
	}
	if err := it.loadBlock(it.blockIx - 1); err != nil {
		return err
	}
	_, err := it.block.Seek(Last())
	return err
}

func (it *SstableIterator) Key() []byte {
	requireValid("sstable_iterator", it.IsValid())
	return it.block.Key()
}

func (it *SstableIterator) Value() []byte {
	requireValid("sstable_iterator", it.IsValid())
	return it.block.Value()
}

func (it *SstableIterator) IsValid() bool {
	return it.block != nil && it.block.IsValid()
}
