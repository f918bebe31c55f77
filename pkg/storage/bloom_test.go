package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBloomFilterSoundness(t *testing.T) {
	keys := [][]byte{[]byte("k01"), []byte("k02"), []byte("k04"), []byte("k05")}
	fingerprints := make([]uint32, len(keys))
	for i, k := range keys {
		fingerprints[i] = Fingerprint32(k)
	}

	bf := BuildBloomFilter(fingerprints, 0.01)
	for _, k := range keys {
		assert.True(t, bf.MaybeContains(k), "inserted key must never be reported absent")
	}
}

func TestBloomFilterRoundTrip(t *testing.T) {
	fingerprints := []uint32{Fingerprint32([]byte("a")), Fingerprint32([]byte("b"))}
	bf := BuildBloomFilter(fingerprints, 0.01)

	data, err := bf.MarshalBinary()
	require.NoError(t, err)

	decoded, err := UnmarshalBloomFilter(data)
	require.NoError(t, err)
	assert.True(t, decoded.MaybeContains([]byte("a")))
	assert.True(t, decoded.MaybeContains([]byte("b")))
}

func TestBloomFilterEmpty(t *testing.T) {
	decoded, err := UnmarshalBloomFilter(nil)
	require.NoError(t, err)
	// An absent filter must never gate out a real read; MaybeContains is a "don't know" true.
	assert.True(t, decoded.MaybeContains([]byte("anything")))
}
