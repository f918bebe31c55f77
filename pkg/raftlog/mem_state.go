package raftlog

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrGroupNotFound = errors.New("raftlog: group not found")
	ErrGroupExists   = errors.New("raftlog: group already added")
	ErrIndexGap      = errors.New("raftlog: append index leaves a gap")
)

// EntryIndex locates one raft log entry's serialized bytes inside a log segment: the segment's
// file id, the data-segment's offset within that file, and this entry's offset and length within
// the data segment.
type EntryIndex struct {
	Term        uint64
	Ctx         []byte
	FileID      uint64
	BlockOffset int
	BlockLen    int
	Offset      int
	Len         int
}

// MemState is one raft group's in-memory index: a dense slice of EntryIndex keyed by a sliding
// window starting at firstIndex, plus a small side table of raw key/value pairs a group may stash
// alongside its log (e.g. applied-index bookkeeping). maskIndex tracks the boundary below which
// entries have been masked (made invisible to Entries, but not yet reclaimed) as distinct from
// firstIndex, the boundary below which they have been physically dropped.
type MemState struct {
	mu         sync.RWMutex
	firstIndex uint64
	maskIndex  uint64
	indices    []EntryIndex // indices[i] describes entry firstIndex+i.
	kvs        map[string][]byte
}

func newMemState() *MemState {
	return &MemState{kvs: make(map[string][]byte)}
}

// FirstIndex returns the oldest index this group still exposes. With unmask true, a masked prefix
// (firstIndex <= i < maskIndex) is included; with unmask false, masked entries are treated as
// absent and firstIndex is reported as maskIndex instead.
func (s *MemState) FirstIndex(unmask bool) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if unmask || s.maskIndex < s.firstIndex {
		return s.firstIndex
	}
	return s.maskIndex
}

// NextIndex returns one past the newest index this group holds.
func (s *MemState) NextIndex(unmask bool) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextIndexLocked(unmask)
}

func (s *MemState) nextIndexLocked(unmask bool) uint64 {
	first := s.firstIndex
	if !unmask && s.maskIndex > first {
		first = s.maskIndex
	}
	next := s.firstIndex + uint64(len(s.indices))
	if next < first {
		return first
	}
	return next
}

// Term returns the term recorded for index, or 0 if index is out of range.
func (s *MemState) Term(index uint64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < s.firstIndex || index >= s.firstIndex+uint64(len(s.indices)) {
		return 0
	}
	return s.indices[index-s.firstIndex].Term
}

// Append records entries starting at firstIndex, extending the log. It rejects a batch that would
// leave a gap after the current tail, silently drops any prefix of entries that predates the
// compacted/masked boundary, and — on indices that overlap the existing tail — overwrites them
// unless the existing entry carries a higher term, in which case that one entry is left untouched
// (protects against an out-of-order append from a stale leader). Entries past the prior tail are
// always appended; entries already present beyond the incoming batch's coverage are never
// discarded by a shorter batch.
func (s *MemState) Append(firstIndex uint64, entries []EntryIndex) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.nextIndexLocked(true)
	if len(s.indices) == 0 {
		s.firstIndex = firstIndex
		next = firstIndex
	}
	if firstIndex > next {
		return fmt.Errorf("%w: got first index %d, expected at most %d", ErrIndexGap, firstIndex, next)
	}

	// Drop the part of the batch that is already behind our compacted/masked prefix.
	skip := uint64(0)
	if firstIndex < s.firstIndex {
		skip = s.firstIndex - firstIndex
		if skip >= uint64(len(entries)) {
			return nil
		}
	}
	startIndex := firstIndex + skip
	pos := startIndex - s.firstIndex

	for i, e := range entries[skip:] {
		idx := pos + uint64(i)
		if idx < uint64(len(s.indices)) {
			if s.indices[idx].Term > e.Term {
				continue // An existing higher-term entry is never overwritten by a stale append.
			}
			s.indices[idx] = e
		} else {
			s.indices = append(s.indices, e)
		}
	}
	return nil
}

// Truncate drops every entry at or after index. An index at or past the current tail is accepted
// as a no-op rather than an error, matching how the upstream raft runtime issues conservative
// truncate calls that may already be satisfied.
func (s *MemState) Truncate(index uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index <= s.firstIndex {
		s.indices = nil
		return
	}
	if index-s.firstIndex >= uint64(len(s.indices)) {
		return
	}
	s.indices = s.indices[:index-s.firstIndex]
}

// Compact drops every entry strictly before index, freeing their slots. An index at or past the
// tail resets the group to empty with firstIndex reset to 0, treating the group as caught up to a
// snapshot beyond anything currently logged.
func (s *MemState) Compact(index uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index <= s.firstIndex {
		return
	}
	if index-s.firstIndex >= uint64(len(s.indices)) {
		s.firstIndex = 0
		s.indices = nil
		return
	}
	s.indices = s.indices[index-s.firstIndex:]
	s.firstIndex = index
}

// Mask hides every entry strictly before index from Entries without physically dropping them,
// so a later Compact can still reclaim their storage. An index at or past the tail masks every
// entry currently held.
func (s *MemState) Mask(index uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index <= s.firstIndex {
		return
	}
	tail := s.firstIndex + uint64(len(s.indices))
	if index >= tail {
		s.maskIndex = tail
		return
	}
	s.maskIndex = index
}

// Entries returns the EntryIndex slice for [lo, hi), excluding masked entries.
func (s *MemState) Entries(lo, hi uint64) ([]EntryIndex, error) {
	return s.entries(lo, hi, false)
}

// MayEntries is Entries but tolerates a lo below the masked/compacted boundary by clamping it up,
// used by callers that only want "whatever is still available" rather than a strict range.
func (s *MemState) MayEntries(lo, hi uint64) ([]EntryIndex, error) {
	s.mu.RLock()
	first := s.firstIndex
	if s.maskIndex > first {
		first = s.maskIndex
	}
	s.mu.RUnlock()
	if lo < first {
		lo = first
	}
	return s.entries(lo, hi, true)
}

func (s *MemState) entries(lo, hi uint64, lenient bool) ([]EntryIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	first := s.firstIndex
	if s.maskIndex > first {
		first = s.maskIndex
	}
	next := s.nextIndexLocked(true)
	if hi > next {
		if !lenient {
			return nil, fmt.Errorf("raftlog: entries hi=%d past tail %d", hi, next)
		}
		hi = next
	}
	if lo < first || lo > hi {
		if !lenient {
			return nil, fmt.Errorf("raftlog: entries lo=%d out of range [%d,%d)", lo, first, next)
		}
		if lo < first {
			lo = first
		}
		if lo > hi {
			return nil, nil
		}
	}
	out := make([]EntryIndex, hi-lo)
	copy(out, s.indices[lo-s.firstIndex:hi-s.firstIndex])
	return out, nil
}

// Put stashes a raw key/value pair alongside this group's log.
func (s *MemState) Put(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kvs[string(key)] = append([]byte(nil), value...)
}

// Get returns the stashed value for key, if any.
func (s *MemState) Get(key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kvs[string(key)]
	return v, ok
}

// Delete removes the stashed value for key.
func (s *MemState) Delete(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kvs, string(key))
}

// MemStates is the full set of per-group MemState, keyed by group id and guarded independently of
// the groups themselves so that a lookup never blocks on another group's mutation.
type MemStates struct {
	mu     sync.RWMutex
	groups map[uint64]*MemState
}

func NewMemStates() *MemStates {
	return &MemStates{groups: make(map[uint64]*MemState)}
}

// AddGroup registers a new, empty group. It returns ErrGroupExists if the group is already known.
func (m *MemStates) AddGroup(group uint64) (*MemState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[group]; ok {
		return nil, fmt.Errorf("%w: group %d", ErrGroupExists, group)
	}
	s := newMemState()
	m.groups[group] = s
	return s, nil
}

// MayAddGroup registers the group if absent and returns its MemState either way.
func (m *MemStates) MayAddGroup(group uint64) *MemState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.groups[group]
	if !ok {
		s = newMemState()
		m.groups[group] = s
	}
	return s
}

// RemoveGroup drops a group's in-memory state entirely.
func (m *MemStates) RemoveGroup(group uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, group)
}

// minLiveFileID returns the lowest segment file id any group still has an entry in, and whether
// any group holds entries at all. A group with an empty index does not constrain the result.
func (m *MemStates) minLiveFileID() (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	min, found := uint64(0), false
	for _, s := range m.groups {
		s.mu.RLock()
		if len(s.indices) > 0 {
			id := s.indices[0].FileID
			if !found || id < min {
				min, found = id, true
			}
		}
		s.mu.RUnlock()
	}
	return min, found
}

// Get returns the MemState for group, or ErrGroupNotFound.
func (m *MemStates) Get(group uint64) (*MemState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.groups[group]
	if !ok {
		return nil, fmt.Errorf("%w: group %d", ErrGroupNotFound, group)
	}
	return s, nil
}
