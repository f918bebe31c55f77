package iterator

import "github.com/nobletooth/strata/pkg/storage"

// BlockIterator is a direct scan over a decoded block (§4.8): no MVCC logic, Key returns the
// full key (user_key || inverted timestamp) exactly as stored, not a bare user-key.
type BlockIterator struct {
	block *storage.Block
	index int // -1 before the first entry, block.Len() past the last.
}

var _ Iterator = (*BlockIterator)(nil)

// NewBlockIterator wraps a decoded block for iteration.
func NewBlockIterator(block *storage.Block) *BlockIterator {
	return &BlockIterator{block: block, index: -1}
}

func (it *BlockIterator) Seek(s Seek) (bool, error) {
	switch s.Kind {
	case SeekFirst:
		if it.block.Len() == 0 {
			it.index = it.block.Len()
			return false, nil
		}
		it.index = 0
		return true, nil
	case SeekLast:
		if it.block.Len() == 0 {
			it.index = 0
			return false, nil
		}
		it.index = it.block.Len() - 1
		return true, nil
	case SeekRandomForward:
		it.index = it.block.Seek(s.Target)
		if it.index >= it.block.Len() {
			return false, nil
		}
		fk, _ := it.block.EntryAt(it.index)
		return compareBytes(fk, s.Target) == 0, nil
	case SeekRandomBackward:
		idx := it.block.Seek(s.Target)
		if idx < it.block.Len() {
			fk, _ := it.block.EntryAt(idx)
			if compareBytes(fk, s.Target) == 0 {
				it.index = idx
				return true, nil
			}
		}
		it.index = idx - 1
		return false, nil
	}
	return false, nil
}

func (it *BlockIterator) Next() error {
	requireValid("block_iterator", it.IsValid())
	it.index++
	return nil
}

func (it *BlockIterator) Prev() error {
	requireValid("block_iterator", it.IsValid())
	it.index--
	return nil
}

func (it *BlockIterator) Key() []byte {
	requireValid("block_iterator", it.IsValid())
	fk, _ := it.block.EntryAt(it.index)
	return fk
}

func (it *BlockIterator) Value() []byte {
	requireValid("block_iterator", it.IsValid())
	_, v := it.block.EntryAt(it.index)
	return v
}

func (it *BlockIterator) IsValid() bool {
	return it.index >= 0 && it.index < it.block.Len()
}
