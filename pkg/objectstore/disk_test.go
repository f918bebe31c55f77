package objectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStorePutGetRemove(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "a/b/c.sst", []byte("hello")))

	got, err := store.Get(ctx, "a/b/c.sst")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	rng, err := store.GetRange(ctx, "a/b/c.sst", 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("ell"), rng)

	require.NoError(t, store.Remove(ctx, "a/b/c.sst"))
	_, err = store.Get(ctx, "a/b/c.sst")
	var notFound *NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestDiskStoreGetMissingPath(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
