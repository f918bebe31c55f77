package iterator

import (
	"context"
	"testing"

	"github.com/nobletooth/strata/pkg/objectstore"
	"github.com/nobletooth/strata/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestSstableStore(t *testing.T, keys []string, id storage.SstableID) *storage.SstableStore {
	t.Helper()
	b := storage.NewSstableBuilder(storage.SstableBuilderOptions{
		BlockCapacity:     24,
		BloomFalsePosRate: 0.01,
		Compression:       storage.CompressionNone,
		RestartInterval:   4,
	})
	for i, k := range keys {
		require.NoError(t, b.Add([]byte(k), uint64(i+1), storage.EncodeValueSlot([]byte("v-"+k), true)))
	}
	data, meta, err := b.Build()
	require.NoError(t, err)

	ctx := context.Background()
	objStore := objectstore.NewMemStore()
	store := storage.NewSstableStore(ctx, "t", objStore)
	require.NoError(t, store.Put(ctx, id, data, meta, storage.CacheFill))
	return store
}

func TestSstableIteratorForwardAcrossBlocks(t *testing.T) {
	ctx := context.Background()
	keys := []string{"k01", "k02", "k03", "k04", "k05", "k06", "k07", "k08"}
	store := buildTestSstableStore(t, keys, storage.SstableID(1))

	it, err := NewSstableIterator(ctx, store, storage.SstableID(1), storage.CacheFill)
	require.NoError(t, err)

	found, err := it.Seek(First())
	require.NoError(t, err)
	assert.True(t, found)

	var got []string
	for it.IsValid() {
		got = append(got, string(storage.UserKey(it.Key())))
		require.NoError(t, it.Next())
	}
	assert.Equal(t, keys, got)
}

func TestSstableIteratorSeekRandomForward(t *testing.T) {
	ctx := context.Background()
	keys := []string{"k01", "k02", "k03", "k04", "k05", "k06"}
	store := buildTestSstableStore(t, keys, storage.SstableID(2))

	it, err := NewSstableIterator(ctx, store, storage.SstableID(2), storage.CacheFill)
	require.NoError(t, err)

	found, err := it.Seek(RandomForward(storage.FullKey([]byte("k04"), 4)))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "k04", string(storage.UserKey(it.Key())))
}

func TestSstableIteratorBackward(t *testing.T) {
	ctx := context.Background()
	keys := []string{"k01", "k02", "k03", "k04", "k05"}
	store := buildTestSstableStore(t, keys, storage.SstableID(3))

	it, err := NewSstableIterator(ctx, store, storage.SstableID(3), storage.CacheFill)
	require.NoError(t, err)

	found, err := it.Seek(Last())
	require.NoError(t, err)
	assert.True(t, found)

	var got []string
	for it.IsValid() {
		got = append(got, string(storage.UserKey(it.Key())))
		require.NoError(t, it.Prev())
	}
	expected := []string{"k05", "k04", "k03", "k02", "k01"}
	assert.Equal(t, expected, got)
}
