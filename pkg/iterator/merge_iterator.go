package iterator

import "container/heap"

// mergeHeapItem tracks one child iterator's current key in the merge heap. order is the child's
// position in the original children slice: on a tied key, the lowest order wins, matching LSM
// precedence (earlier children are fresher sources — memtable before immutable tables, newer
// tables before older ones).
type mergeHeapItem struct {
	child Iterator
	order int
}

// mergeHeap is a container/heap over *mergeHeapItem; less reverses the comparison for backward
// iteration so the same type serves both a min-heap and a max-heap.
type mergeHeap struct {
	items []*mergeHeapItem
	max   bool
}

func (h *mergeHeap) Len() int { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool {
	c := compareBytes(h.items[i].child.Key(), h.items[j].child.Key())
	if h.max {
		c = -c
	}
	if c != 0 {
		return c < 0
	}
	return h.items[i].order < h.items[j].order
}
func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x any)    { h.items = append(h.items, x.(*mergeHeapItem)) }
func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}
func (h *mergeHeap) peek() *mergeHeapItem { return h.items[0] }

// MergeIterator is the top-level k-way merge over child iterators with overlapping key ranges
// (memtables, immutable memtables, SSTables at multiple levels: §4.8). Forward iteration keeps a
// min-heap keyed by each child's current key; backward iteration rebuilds it as a max-heap. On a
// key present in more than one child, the child with the lowest index among children wins and the
// others are advanced past that key without being surfaced.
type MergeIterator struct {
	children []Iterator
	forward  bool
	heap     *mergeHeap
}

var _ Iterator = (*MergeIterator)(nil)

// NewMergeIterator builds a merge over children. children are not positioned; call Seek before
// using the iterator.
func NewMergeIterator(children []Iterator) *MergeIterator {
	return &MergeIterator{children: children}
}

func (it *MergeIterator) rebuild(forward bool) {
	it.forward = forward
	h := &mergeHeap{items: make([]*mergeHeapItem, 0, len(it.children)), max: !forward}
	for i, c := range it.children {
		if c.IsValid() {
			h.items = append(h.items, &mergeHeapItem{child: c, order: i})
		}
	}
	heap.Init(h)
	it.heap = h
}

func (it *MergeIterator) Seek(s Seek) (bool, error) {
	for _, c := range it.children {
		if _, err := c.Seek(s); err != nil {
			return false, err
		}
	}
	forward := s.Kind != SeekLast && s.Kind != SeekRandomBackward
	it.rebuild(forward)
	if !it.IsValid() {
		return false, nil
	}
	found := s.Kind != SeekRandomForward && s.Kind != SeekRandomBackward
	if !found {
		found = compareBytes(it.Key(), s.Target) == 0
	}
	return found, nil
}

// step pops the current top, advances it (and anything else sitting on the same key), and
// restores the heap invariant.
func (it *MergeIterator) step(advance func(Iterator) error) error {
	requireValid("merge_iterator", it.IsValid())
	top := heap.Pop(it.heap).(*mergeHeapItem)
	key := append([]byte(nil), top.child.Key()...)
	if err := advance(top.child); err != nil {
		return err
	}
	if top.child.IsValid() {
		heap.Push(it.heap, top)
	}
	for it.heap.Len() > 0 && compareBytes(it.heap.peek().child.Key(), key) == 0 {
		item := heap.Pop(it.heap).(*mergeHeapItem)
		if err := advance(item.child); err != nil {
			return err
		}
		if item.child.IsValid() {
			heap.Push(it.heap, item)
		}
	}
	return nil
}

// reverse re-seeks every child either just past (Next) or just before (Prev) the current key and
// rebuilds the heap with the opposite ordering; used only when the direction of travel flips.
func (it *MergeIterator) reverse(forward bool) error {
	key := append([]byte(nil), it.Key()...)
	for _, c := range it.children {
		var s Seek
		if forward {
			s = RandomForward(key)
		} else {
			s = RandomBackward(key)
		}
		if _, err := c.Seek(s); err != nil {
			return err
		}
		if c.IsValid() && compareBytes(c.Key(), key) == 0 {
			var err error
			if forward {
				err = c.Next()
			} else {
				err = c.Prev()
			}
			if err != nil {
				return err
			}
		}
	}
	it.rebuild(forward)
	return nil
}

func (it *MergeIterator) Next() error {
	if !it.forward {
		return it.reverse(true)
	}
	return it.step(func(c Iterator) error { return c.Next() })
}

func (it *MergeIterator) Prev() error {
	if it.forward {
		return it.reverse(false)
	}
	return it.step(func(c Iterator) error { return c.Prev() })
}

func (it *MergeIterator) Key() []byte {
	requireValid("merge_iterator", it.IsValid())
	return it.heap.peek().child.Key()
}

func (it *MergeIterator) Value() []byte {
	requireValid("merge_iterator", it.IsValid())
	return it.heap.peek().child.Value()
}

func (it *MergeIterator) IsValid() bool { return it.heap != nil && it.heap.Len() > 0 }
