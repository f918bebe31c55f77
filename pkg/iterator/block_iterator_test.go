package iterator

import (
	"testing"

	"github.com/nobletooth/strata/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestBlock(t *testing.T, keys []string) *storage.Block {
	t.Helper()
	b := storage.NewBlockBuilder(4, storage.CompressionNone)
	for i, k := range keys {
		b.Add(storage.FullKey([]byte(k), uint64(i+1)), storage.EncodeValueSlot([]byte("v-"+k), true))
	}
	raw, err := b.Build()
	require.NoError(t, err)
	block, err := storage.DecodeBlock(raw)
	require.NoError(t, err)
	return block
}

func TestBlockIteratorForward(t *testing.T) {
	block := buildTestBlock(t, []string{"a", "b", "c", "d", "e"})
	it := NewBlockIterator(block)

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

func TestBlockIteratorBackward(t *testing.T) {
	block := buildTestBlock(t, []string{"a", "b", "c"})
	it := NewBlockIterator(block)

	found, err := it.Seek(Last())
	require.NoError(t, err)
	assert.True(t, found)

	var got []string
	for it.IsValid() {
		got = append(got, string(storage.UserKey(it.Key())))
		require.NoError(t, it.Prev())
	}
	assert.Equal(t, []string{"c", "b", "a"}, got)
}

func TestBlockIteratorSeekRandom(t *testing.T) {
	block := buildTestBlock(t, []string{"a", "c", "e"})
	it := NewBlockIterator(block)

	found, err := it.Seek(RandomForward(storage.FullKey([]byte("c"), 2)))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "c", string(storage.UserKey(it.Key())))

	found, err = it.Seek(RandomForward(storage.FullKey([]byte("b"), 100)))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "c", string(storage.UserKey(it.Key())))
}
