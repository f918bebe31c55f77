package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSstableBuild4Keys mirrors scenario S1: k01..k05 skipping k03, timestamps equal to index,
// block_capacity=32 should split into 2 blocks.
func TestSstableBuild4Keys(t *testing.T) {
	b := NewSstableBuilder(SstableBuilderOptions{
		BlockCapacity:     32,
		BloomFalsePosRate: 0.01,
		Compression:       CompressionNone,
		RestartInterval:   defaultRestartInterval,
	})

	keys := []string{"k01", "k02", "k04", "k05"}
	for i, k := range keys {
		ts := uint64(i + 1)
		require.NoError(t, b.Add([]byte(k), ts, EncodeValueSlot([]byte("v"+k[1:]), true)))
	}

	data, meta, err := b.Build()
	require.NoError(t, err)
	require.Len(t, meta.BlockMetas, 2)

	assert.Equal(t, FullKey([]byte("k01"), 1), meta.BlockMetas[0].FirstKey)
	assert.Equal(t, FullKey([]byte("k05"), 4), meta.BlockMetas[len(meta.BlockMetas)-1].LastKey)

	// Trailing block-count word.
	assert.Greater(t, len(data), 4)
}

func TestSstableMetaEncodeDecode(t *testing.T) {
	b := NewSstableBuilder(DefaultSstableBuilderOptions())
	for i, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, b.Add([]byte(k), uint64(i+1), EncodeValueSlot([]byte("v"), true)))
	}
	_, meta, err := b.Build()
	require.NoError(t, err)

	encoded, err := meta.Encode()
	require.NoError(t, err)

	decoded, err := DecodeSstableMeta(encoded)
	require.NoError(t, err)
	require.Len(t, decoded.BlockMetas, len(meta.BlockMetas))
	for i := range meta.BlockMetas {
		assert.Equal(t, meta.BlockMetas[i].Offset, decoded.BlockMetas[i].Offset)
		assert.Equal(t, meta.BlockMetas[i].Len, decoded.BlockMetas[i].Len)
		assert.Equal(t, meta.BlockMetas[i].FirstKey, decoded.BlockMetas[i].FirstKey)
		assert.Equal(t, meta.BlockMetas[i].LastKey, decoded.BlockMetas[i].LastKey)
	}
	assert.True(t, decoded.Bloom.MaybeContains([]byte("a")))
}

func TestSstableMetaDecodeDetectsCorruption(t *testing.T) {
	b := NewSstableBuilder(DefaultSstableBuilderOptions())
	require.NoError(t, b.Add([]byte("a"), 1, EncodeValueSlot([]byte("v"), true)))
	_, meta, err := b.Build()
	require.NoError(t, err)

	encoded, err := meta.Encode()
	require.NoError(t, err)
	encoded[len(encoded)-1] ^= 0xFF

	_, err = DecodeSstableMeta(encoded)
	assert.ErrorIs(t, err, ErrBlockChecksum)
}

func TestSstableBuilderRejectsDescendingKeys(t *testing.T) {
	b := NewSstableBuilder(DefaultSstableBuilderOptions())
	require.NoError(t, b.Add([]byte("b"), 1, EncodeValueSlot([]byte("v"), true)))
	err := b.Add([]byte("a"), 1, EncodeValueSlot([]byte("v"), true))
	assert.ErrorIs(t, err, ErrDescendingKey)
}

func TestSstableCompressedRoundTrip(t *testing.T) {
	b := NewSstableBuilder(SstableBuilderOptions{
		BlockCapacity:     4096,
		BloomFalsePosRate: 0.01,
		Compression:       CompressionLZ4,
		RestartInterval:   defaultRestartInterval,
	})
	for i := 0; i < 100; i++ {
		k := []byte("repeated-key-prefix-" + string(rune('a'+i%26)))
		require.NoError(t, b.Add(k, uint64(1000-i), EncodeValueSlot([]byte("value-payload"), true)))
	}
	data, meta, err := b.Build()
	require.NoError(t, err)
	require.NotEmpty(t, meta.BlockMetas)

	bm := meta.BlockMetas[0]
	lo, hi := bm.DataRange()
	block, err := DecodeBlock(data[lo:hi])
	require.NoError(t, err)
	assert.Greater(t, block.Len(), 0)
}
