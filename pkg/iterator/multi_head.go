package iterator

import (
	"container/heap"
	"iter"

	"github.com/nobletooth/strata/pkg/utils"
)

// headItem is one sequence's current head, tracked in the merge heap.
type headItem[K any, V any] struct {
	pair  utils.Pair[K, V]
	seqIx int // Index into the original seqs slice; lower wins duplicate keys.
	next  func() (utils.Pair[K, V], bool)
	stop  func()
}

type headHeap[K any, V any] struct {
	items   []*headItem[K, V]
	compare func(a, b K) int
}

func (h *headHeap[K, V]) Len() int { return len(h.items) }

func (h *headHeap[K, V]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if c := h.compare(keyOf(a.pair), keyOf(b.pair)); c != 0 {
		return c < 0
	}
	return a.seqIx < b.seqIx
}

func (h *headHeap[K, V]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *headHeap[K, V]) Push(x any) { h.items = append(h.items, x.(*headItem[K, V])) }

func (h *headHeap[K, V]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}

func keyOf[K any, V any](p utils.Pair[K, V]) K { return p.Key }

// MultiHead merges seqs, which must each already be sorted ascending by compare, into a single
// ascending sequence. When two or more sequences share the same key at the same step, the
// earliest-indexed sequence's value wins and the others are silently skipped for that key.
func MultiHead[K any, V any](compare func(a, b K) int, seqs []iter.Seq[utils.Pair[K, V]]) (iter.Seq[utils.Pair[K, V]], error) {
	h := &headHeap[K, V]{compare: compare}
	for i, s := range seqs {
		next, stop := iter.Pull(s)
		if pair, ok := next(); ok {
			heap.Push(h, &headItem[K, V]{pair: pair, seqIx: i, next: next, stop: stop})
		} else {
			stop()
		}
	}

	return func(yield func(utils.Pair[K, V]) bool) {
		defer func() {
			for _, it := range h.items {
				it.stop()
			}
		}()
		for h.Len() > 0 {
			top := h.items[0]
			current := top.pair
			// Drop every other head sitting at the same key; the lowest seqIx (top, by Less) wins.
			for h.Len() > 0 && compare(keyOf(h.items[0].pair), keyOf(current)) == 0 {
				it := heap.Pop(h).(*headItem[K, V])
				if pair, ok := it.next(); ok {
					it.pair = pair
					heap.Push(h, it)
				} else {
					it.stop()
				}
			}
			if !yield(current) {
				return
			}
		}
	}, nil
}
