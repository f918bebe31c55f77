package iterator

import (
	"testing"

	"github.com/nobletooth/strata/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemtableIteratorSnapshotVisibility(t *testing.T) {
	mt := storage.NewMemtable()
	mt.Put([]byte("k"), 1, storage.EncodeValueSlot([]byte("v1"), true))
	mt.Put([]byte("k"), 3, storage.EncodeValueSlot([]byte("v3"), true))
	mt.Put([]byte("k"), 2, storage.EncodeValueSlot([]byte("v2"), true))
	mt.Put([]byte("j"), 1, storage.EncodeValueSlot([]byte("vj"), true))

	it := NewMemtableIterator(mt, 2)
	found, err := it.Seek(RandomForward([]byte("k")))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "k", string(it.Key()))
	assert.Equal(t, []byte("v2"), it.Value())
}

func TestMemtableIteratorSkipsTombstone(t *testing.T) {
	mt := storage.NewMemtable()
	mt.Put([]byte("a"), 1, storage.EncodeValueSlot([]byte("va"), true))
	mt.Put([]byte("b"), 1, storage.EncodeValueSlot([]byte("vb1"), true))
	mt.Put([]byte("b"), 2, storage.EncodeValueSlot(nil, false)) // b deleted at ts=2.
	mt.Put([]byte("c"), 1, storage.EncodeValueSlot([]byte("vc"), true))

	it := NewMemtableIterator(mt, 10)
	found, err := it.Seek(First())
	require.NoError(t, err)
	assert.True(t, found)

	var got []string
	for it.IsValid() {
		got = append(got, string(it.Key()))
		require.NoError(t, it.Next())
	}
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestMemtableIteratorBackward(t *testing.T) {
	mt := storage.NewMemtable()
	for _, k := range []string{"a", "b", "c", "d"} {
		mt.Put([]byte(k), 1, storage.EncodeValueSlot([]byte("v-"+k), true))
	}

	it := NewMemtableIterator(mt, 10)
	found, err := it.Seek(Last())
	require.NoError(t, err)
	assert.True(t, found)

	var got []string
	for it.IsValid() {
		got = append(got, string(it.Key()))
		require.NoError(t, it.Prev())
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, got)
}

func TestMemtableIteratorInvisibleAtOldSnapshot(t *testing.T) {
	mt := storage.NewMemtable()
	mt.Put([]byte("k"), 5, storage.EncodeValueSlot([]byte("v5"), true))

	it := NewMemtableIterator(mt, 1) // Snapshot before the only write.
	found, err := it.Seek(First())
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, it.IsValid())
}
