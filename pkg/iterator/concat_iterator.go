package iterator

import "sort"

// ConcatChild is one child of a ConcatIterator: an iterator over a disjoint ordered key range,
// plus the bounds the parent needs to binary-search without waking the child up.
type ConcatChild struct {
	FirstKey []byte
	LastKey  []byte
	Iter     Iterator
}

// ConcatIterator presents a sequence of child iterators whose key ranges are disjoint and
// ascending (e.g. the SSTables at one LSM level) as a single logical iterator (§4.8), using the
// same binary-seek-then-fallthrough pattern as SstableIterator over blocks.
type ConcatIterator struct {
	children []ConcatChild
	index    int // -1 before the first child, len(children) past the last.
}

var _ Iterator = (*ConcatIterator)(nil)

// NewConcatIterator builds a ConcatIterator over children, which must already be ordered
// ascending by key range.
func NewConcatIterator(children []ConcatChild) *ConcatIterator {
	return &ConcatIterator{children: children, index: -1}
}

func (it *ConcatIterator) findChild(target []byte) int {
	return sort.Search(len(it.children), func(i int) bool {
		return compareBytes(it.children[i].LastKey, target) >= 0
	})
}

func (it *ConcatIterator) Seek(s Seek) (bool, error) {
	n := len(it.children)
	switch s.Kind {
	case SeekFirst:
		for i := 0; i < n; i++ {
			found, err := it.children[i].Iter.Seek(First())
			if err != nil {
				return false, err
			}
			if it.children[i].Iter.IsValid() {
				it.index = i
				return found, nil
			}
		}
		it.index = n
		return false, nil
	case SeekLast:
		for i := n - 1; i >= 0; i-- {
			found, err := it.children[i].Iter.Seek(Last())
			if err != nil {
				return false, err
			}
			if it.children[i].Iter.IsValid() {
				it.index = i
				return found, nil
			}
		}
		it.index = -1
		return false, nil
	case SeekRandomForward:
		idx := it.findChild(s.Target)
		for idx < n {
			found, err := it.children[idx].Iter.Seek(s)
			if err != nil {
				return false, err
			}
			if it.children[idx].Iter.IsValid() {
				it.index = idx
				return found, nil
			}
			idx++
		}
		it.index = n
		return false, nil
	case SeekRandomBackward:
		idx := it.findChild(s.Target)
		if idx >= n {
			idx = n - 1
		}
		for idx >= 0 {
			found, err := it.children[idx].Iter.Seek(s)
			if err != nil {
				return false, err
			}
			if it.children[idx].Iter.IsValid() {
				it.index = idx
				return found, nil
			}
			idx--
		}
		it.index = -1
		return false, nil
	}
	return false, nil
}

func (it *ConcatIterator) Next() error {
	requireValid("concat_iterator", it.IsValid())
	if err := it.children[it.index].Iter.Next(); err != nil {
		return err
	}
	for it.index < len(it.children) && !it.children[it.index].Iter.IsValid() {
		it.index++
		if it.index >= len(it.children) {
			return nil
		}
		if _, err := it.children[it.index].Iter.Seek(First()); err != nil {
			return err
		}
	}
	return nil
}

func (it *ConcatIterator) Prev() error {
	requireValid("concat_iterator", it.IsValid())
	if err := it.children[it.index].Iter.Prev(); err != nil {
		return err
	}
	for it.index >= 0 && !it.children[it.index].Iter.IsValid() {
		it.index--
		if it.index < 0 {
			return nil
		}
		if _, err := it.children[it.index].Iter.Seek(Last()); err != nil {
			return err
		}
	}
	return nil
}

func (it *ConcatIterator) Key() []byte {
	requireValid("concat_iterator", it.IsValid())
	return it.children[it.index].Iter.Key()
}

func (it *ConcatIterator) Value() []byte {
	requireValid("concat_iterator", it.IsValid())
	return it.children[it.index].Iter.Value()
}

func (it *ConcatIterator) IsValid() bool {
	return it.index >= 0 && it.index < len(it.children) && it.children[it.index].Iter.IsValid()
}
