package raftlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idxs(terms ...uint64) []EntryIndex {
	out := make([]EntryIndex, len(terms))
	for i, t := range terms {
		out[i] = EntryIndex{Term: t}
	}
	return out
}

func TestMemStateAppendExtendsTail(t *testing.T) {
	s := newMemState()
	require.NoError(t, s.Append(1, idxs(1, 1, 1)))
	assert.Equal(t, uint64(1), s.FirstIndex(true))
	assert.Equal(t, uint64(4), s.NextIndex(true))

	require.NoError(t, s.Append(4, idxs(1, 1)))
	assert.Equal(t, uint64(6), s.NextIndex(true))
}

func TestMemStateAppendRejectsGap(t *testing.T) {
	s := newMemState()
	require.NoError(t, s.Append(1, idxs(1, 1)))
	err := s.Append(5, idxs(1))
	assert.ErrorIs(t, err, ErrIndexGap)
}

func TestMemStateAppendOverlapDoesNotShrinkTail(t *testing.T) {
	s := newMemState()
	require.NoError(t, s.Append(1, idxs(1, 1, 1)))
	// A short batch overlapping only the middle of the existing range must not drop index 3.
	require.NoError(t, s.Append(2, idxs(1)))
	assert.Equal(t, uint64(4), s.NextIndex(true))
	assert.Equal(t, uint64(1), s.Term(3))
}

func TestMemStateAppendHigherTermOverwrites(t *testing.T) {
	s := newMemState()
	require.NoError(t, s.Append(1, idxs(1, 1, 1)))
	require.NoError(t, s.Append(2, idxs(2, 2)))
	assert.Equal(t, uint64(2), s.Term(2))
	assert.Equal(t, uint64(2), s.Term(3))
	assert.Equal(t, uint64(4), s.NextIndex(true))
}

func TestMemStateAppendLowerTermSkipsOverlapOnly(t *testing.T) {
	s := newMemState()
	require.NoError(t, s.Append(1, idxs(2, 2, 2)))
	// A stale leader resends from index 2 at a lower term than what's already recorded there: the
	// overlapping entry is left untouched, but the call itself still succeeds.
	require.NoError(t, s.Append(2, idxs(1)))
	assert.Equal(t, uint64(2), s.Term(2))
	assert.Equal(t, uint64(2), s.Term(3))
	assert.Equal(t, uint64(4), s.NextIndex(true))
}

func TestMemStateAppendSkipsCompactedPrefix(t *testing.T) {
	s := newMemState()
	require.NoError(t, s.Append(1, idxs(1, 1, 1)))
	s.Compact(3)
	// A resend covering [2,5) must only apply the part at or after the compacted boundary.
	require.NoError(t, s.Append(2, idxs(1, 1, 1)))
	assert.Equal(t, uint64(3), s.FirstIndex(true))
	assert.Equal(t, uint64(5), s.NextIndex(true))
}

func TestMemStateTruncate(t *testing.T) {
	s := newMemState()
	require.NoError(t, s.Append(1, idxs(1, 1, 1, 1)))
	s.Truncate(3)
	assert.Equal(t, uint64(3), s.NextIndex(true))

	// Truncating past the current tail is a tolerated no-op, not an error.
	s.Truncate(100)
	assert.Equal(t, uint64(3), s.NextIndex(true))
}

func TestMemStateCompact(t *testing.T) {
	s := newMemState()
	require.NoError(t, s.Append(1, idxs(1, 1, 1, 1)))
	s.Compact(3)
	assert.Equal(t, uint64(3), s.FirstIndex(true))
	entries, err := s.Entries(3, 5)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMemStateCompactPastEndResetsToZero(t *testing.T) {
	s := newMemState()
	require.NoError(t, s.Append(1, idxs(1, 1)))
	s.Compact(100)
	assert.Equal(t, uint64(0), s.FirstIndex(true))
	assert.Equal(t, uint64(0), s.NextIndex(true))
}

func TestMemStateMaskHidesWithoutDropping(t *testing.T) {
	s := newMemState()
	require.NoError(t, s.Append(1, idxs(1, 1, 1, 1)))
	s.Mask(3)

	_, err := s.Entries(1, 5)
	assert.Error(t, err)

	entries, err := s.MayEntries(1, 5)
	require.NoError(t, err)
	assert.Len(t, entries, 2) // Only [3,5) remain visible.

	// The masked prefix is still physically present until Compact reclaims it.
	assert.Equal(t, uint64(1), s.FirstIndex(true))
	assert.Equal(t, uint64(3), s.FirstIndex(false))
}

func TestMemStateMaskPastEndMasksEverything(t *testing.T) {
	s := newMemState()
	require.NoError(t, s.Append(1, idxs(1, 1)))
	s.Mask(100)
	entries, err := s.MayEntries(0, 3)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemStateKvSideTable(t *testing.T) {
	s := newMemState()
	s.Put([]byte("applied"), []byte("5"))
	v, ok := s.Get([]byte("applied"))
	assert.True(t, ok)
	assert.Equal(t, []byte("5"), v)

	s.Delete([]byte("applied"))
	_, ok = s.Get([]byte("applied"))
	assert.False(t, ok)
}

func TestMemStatesAddAndRemoveGroup(t *testing.T) {
	m := NewMemStates()
	_, err := m.AddGroup(1)
	require.NoError(t, err)

	_, err = m.AddGroup(1)
	assert.ErrorIs(t, err, ErrGroupExists)

	_, err = m.Get(1)
	require.NoError(t, err)

	m.RemoveGroup(1)
	_, err = m.Get(1)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestMemStatesMayAddGroupIsIdempotent(t *testing.T) {
	m := NewMemStates()
	a := m.MayAddGroup(7)
	b := m.MayAddGroup(7)
	assert.Same(t, a, b)
}
