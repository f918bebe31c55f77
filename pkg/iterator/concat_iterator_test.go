package iterator

import (
	"testing"

	"github.com/nobletooth/strata/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func concatChildFromBlock(t *testing.T, keys []string) ConcatChild {
	t.Helper()
	block := buildTestBlock(t, keys)
	return ConcatChild{
		FirstKey: storage.FullKey([]byte(keys[0]), uint64(1)),
		LastKey:  storage.FullKey([]byte(keys[len(keys)-1]), uint64(len(keys))),
		Iter:     NewBlockIterator(block),
	}
}

func TestConcatIteratorForward(t *testing.T) {
	children := []ConcatChild{
		concatChildFromBlock(t, []string{"a", "b"}),
		concatChildFromBlock(t, []string{"c", "d"}),
		concatChildFromBlock(t, []string{"e"}),
	}
	it := NewConcatIterator(children)

	found, err := it.Seek(First())
	require.NoError(t, err)
	assert.True(t, found)

	var got []string
	for it.IsValid() {
		got = append(got, string(storage.UserKey(it.Key())))
		require.NoError(t, it.Next())
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestConcatIteratorSeekRandomForwardCrossesChild(t *testing.T) {
	children := []ConcatChild{
		concatChildFromBlock(t, []string{"a", "b"}),
		concatChildFromBlock(t, []string{"d", "e"}),
	}
	it := NewConcatIterator(children)

	// "c" falls in the gap between children; expect landing on "d", the next child's first key.
	found, err := it.Seek(RandomForward(storage.FullKey([]byte("c"), 1)))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "d", string(storage.UserKey(it.Key())))
}

func TestConcatIteratorBackward(t *testing.T) {
	children := []ConcatChild{
		concatChildFromBlock(t, []string{"a", "b"}),
		concatChildFromBlock(t, []string{"c", "d"}),
	}
	it := NewConcatIterator(children)

	found, err := it.Seek(Last())
	require.NoError(t, err)
	assert.True(t, found)

	var got []string
	for it.IsValid() {
		got = append(got, string(storage.UserKey(it.Key())))
		require.NoError(t, it.Prev())
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, got)
}
