// Memtable is the concurrent, ordered, in-memory staging area for not-yet-flushed writes (§4.7).
// Keys are full keys (§3), so ordering on the underlying skiplist already gives (user-key
// ascending, timestamp descending) for free; MVCC resolution on top of that order lives in the
// memtable iterator (pkg/iterator).
package storage

import (
	"bytes"
	"math/rand"
	"sync"
	"time"
)

const (
	memtableMaxLevel = 16
	memtableP        = 0.25
)

// memtableNode is one entry in the skiplist. level-0 carries a backward pointer so a Cursor can
// walk Prev without re-descending from the head, which the teacher's original SkipList never
// needed because it only exposed point lookups.
type memtableNode struct {
	fullKey   []byte
	value     []byte
	forwards  []*memtableNode
	backward0 *memtableNode
}

// Memtable is a concurrent ordered skiplist over full keys with a caller-enforced approximate
// byte budget. Writers must serialize Put with a freeze transition themselves (§4.7); reads are
// safe at any time via Cursor, including concurrently with Put.
type Memtable struct {
	mux         sync.RWMutex
	head        *memtableNode
	level       int
	approxBytes int64
	rnd         *rand.Rand
}

// NewMemtable returns an empty memtable.
func NewMemtable() *Memtable {
	return &Memtable{
		head:  &memtableNode{forwards: make([]*memtableNode, memtableMaxLevel)},
		level: 1,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *Memtable) randomLevel() int {
	lvl := 1
	for lvl < memtableMaxLevel && m.rnd.Float64() < memtableP {
		lvl++
	}
	return lvl
}

// Put encodes (user_key, timestamp) into a full key and inserts valueSlot (already tagged by
// EncodeValueSlot) under it.
func (m *Memtable) Put(userKey []byte, timestamp uint64, valueSlot []byte) {
	m.PutFullKey(FullKey(userKey, timestamp), valueSlot)
}

// PutFullKey inserts valueSlot keyed by an already-encoded full key.
func (m *Memtable) PutFullKey(fullKey, valueSlot []byte) {
	m.mux.Lock()
	defer m.mux.Unlock()

	update := make([]*memtableNode, memtableMaxLevel)
	node := m.head
	for lvl := m.level - 1; lvl >= 0; lvl-- {
		for next := node.forwards[lvl]; next != nil && bytes.Compare(next.fullKey, fullKey) < 0; next = node.forwards[lvl] {
			node = next
		}
		update[lvl] = node
	}

	if next := node.forwards[0]; next != nil && bytes.Equal(next.fullKey, fullKey) {
		m.approxBytes += int64(len(valueSlot) - len(next.value))
		next.value = valueSlot
		return
	}

	lvl := m.randomLevel()
	if lvl > m.level {
		for i := m.level; i < lvl; i++ {
			update[i] = m.head
		}
		m.level = lvl
	}
	newNode := &memtableNode{fullKey: fullKey, value: valueSlot, forwards: make([]*memtableNode, lvl)}
	for i := 0; i < lvl; i++ {
		newNode.forwards[i] = update[i].forwards[i]
		update[i].forwards[i] = newNode
	}
	if prev := update[0]; prev != m.head {
		newNode.backward0 = prev
	}
	if newNode.forwards[0] != nil {
		newNode.forwards[0].backward0 = newNode
	}
	m.approxBytes += int64(len(fullKey) + len(valueSlot))
}

// ApproximateBytes returns the caller-tracked size budget consumed so far (§4.7).
func (m *Memtable) ApproximateBytes() int64 {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return m.approxBytes
}

// Cursor is a bidirectional, stateful position into the memtable's full-key order. It is not
// safe for concurrent use by multiple goroutines, matching the single-owner iterator contract in
// §4.8; the memtable itself remains safe for concurrent Cursor creation and Put.
type Cursor struct {
	mt   *Memtable
	node *memtableNode
}

// NewCursor returns an unpositioned cursor over mt's current contents. Because the underlying
// skiplist nodes are never mutated in place (Put either updates a value slot by replacing the
// slice or splices in a new node), a cursor observes a stable snapshot of the key set it has
// already walked, even as concurrent Puts continue.
func (m *Memtable) NewCursor() *Cursor {
	return &Cursor{mt: m}
}

func (c *Cursor) Valid() bool { return c.node != nil }

func (c *Cursor) FullKey() []byte {
	if c.node == nil {
		return nil
	}
	return c.node.fullKey
}

func (c *Cursor) Value() []byte {
	if c.node == nil {
		return nil
	}
	return c.node.value
}

// SeekToFirst positions the cursor at the smallest full key.
func (c *Cursor) SeekToFirst() {
	c.mt.mux.RLock()
	defer c.mt.mux.RUnlock()
	c.node = c.mt.head.forwards[0]
}

// SeekToLast positions the cursor at the largest full key.
func (c *Cursor) SeekToLast() {
	c.mt.mux.RLock()
	defer c.mt.mux.RUnlock()
	node := c.mt.head
	for lvl := c.mt.level - 1; lvl >= 0; lvl-- {
		for node.forwards[lvl] != nil {
			node = node.forwards[lvl]
		}
	}
	if node == c.mt.head {
		c.node = nil
	} else {
		c.node = node
	}
}

// Seek positions the cursor at the smallest full key >= target.
func (c *Cursor) Seek(target []byte) {
	c.mt.mux.RLock()
	defer c.mt.mux.RUnlock()
	node := c.mt.head
	for lvl := c.mt.level - 1; lvl >= 0; lvl-- {
		for next := node.forwards[lvl]; next != nil && bytes.Compare(next.fullKey, target) < 0; next = node.forwards[lvl] {
			node = next
		}
	}
	c.node = node.forwards[0]
}

// SeekForPrev positions the cursor at the largest full key <= target.
func (c *Cursor) SeekForPrev(target []byte) {
	c.Seek(target)
	if c.node != nil && bytes.Equal(c.node.fullKey, target) {
		return
	}
	c.Prev()
}

// Next advances to the next-larger full key. Requires Valid().
func (c *Cursor) Next() {
	c.mt.mux.RLock()
	defer c.mt.mux.RUnlock()
	if c.node == nil {
		return
	}
	c.node = c.node.forwards[0]
}

// Prev moves to the next-smaller full key. On an invalid cursor (e.g. after a Seek that found
// nothing >= its target) it moves to the last entry instead, which SeekForPrev relies on.
func (c *Cursor) Prev() {
	c.mt.mux.RLock()
	defer c.mt.mux.RUnlock()
	if c.node != nil {
		c.node = c.node.backward0
		return
	}
	// Cursor ran off the end (e.g. after Seek found nothing >= target): the last real node is
	// the tail of the list, reached by descending from head.
	node := c.mt.head
	for lvl := c.mt.level - 1; lvl >= 0; lvl-- {
		for node.forwards[lvl] != nil {
			node = node.forwards[lvl]
		}
	}
	if node != c.mt.head {
		c.node = node
	}
}
