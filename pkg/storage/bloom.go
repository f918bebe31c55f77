// Bloom filters give SSTables a fast negative-lookup path: if maybe_contains(key) is false, the
// key is provably absent from the table and the (expensive) block fetch can be skipped entirely.
package storage

import (
	"fmt"
	"math"

	bloomlib "github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"
)

// Fingerprint32 derives the 32-bit fingerprint the bloom filter and SSTable builder key on. The
// reference implementation uses a farmhash-compatible 32-bit hash; no farmhash-equivalent ships
// in the example pack, so this truncates xxhash-64 to its low 32 bits instead (documented
// substitution — see DESIGN.md). The timestamp is never part of the fingerprint (§3 invariant:
// "bloom filter is built over user-key 32-bit fingerprints only").
func Fingerprint32(userKey []byte) uint32 {
	return uint32(xxhash.Sum64(userKey))
}

// BitsPerKey derives the bits-per-key budget for a bloom filter targeting false-positive rate fp
// over n keys, using the standard -ln(fp)/ln(2)^2 formula.
func BitsPerKey(n int, fp float64) float64 {
	if n <= 0 || fp <= 0 || fp >= 1 {
		return 10
	}
	return -math.Log(fp) / (math.Ln2 * math.Ln2)
}

// BloomFilter wraps bits-and-blooms/bloom/v3 so callers only ever see 32-bit user-key
// fingerprints, matching the wire format's fingerprint-only representation (§6.3).
type BloomFilter struct {
	filter *bloomlib.BloomFilter
}

// BuildBloomFilter constructs a filter sized for len(fingerprints) keys at the given
// false-positive rate and inserts every fingerprint.
func BuildBloomFilter(fingerprints []uint32, falsePositiveRate float64) *BloomFilter {
	bitsPerKey := BitsPerKey(len(fingerprints), falsePositiveRate)
	numBits := uint(math.Ceil(bitsPerKey * float64(max(len(fingerprints), 1))))
	numHashes := uint(math.Ceil(bitsPerKey * math.Ln2))
	if numHashes == 0 {
		numHashes = 1
	}
	if numBits == 0 {
		numBits = 1
	}
	filter := bloomlib.New(numBits, numHashes)
	var buf [4]byte
	for _, fp := range fingerprints {
		putUint32LE(buf[:], fp)
		filter.Add(buf[:])
	}
	return &BloomFilter{filter: filter}
}

// MaybeContains reports whether userKey might be present; false is authoritative (never a false
// negative), true may be a false positive within the configured rate.
func (bf *BloomFilter) MaybeContains(userKey []byte) bool {
	if bf == nil || bf.filter == nil {
		return true // No filter means "don't know", so callers must still check.
	}
	var buf [4]byte
	putUint32LE(buf[:], Fingerprint32(userKey))
	return bf.filter.Test(buf[:])
}

// MarshalBinary returns the bloom filter's parameters and bit array in the form stored as
// bloom_bytes in SstableMeta (§6.3). It delegates to the library's own gob-free binary codec
// (bloom/v3's BloomFilter already implements encoding.BinaryMarshaler) so the on-disk
// representation round-trips exactly through the library that owns the bit layout.
func (bf *BloomFilter) MarshalBinary() ([]byte, error) {
	if bf == nil || bf.filter == nil {
		return nil, nil
	}
	return bf.filter.MarshalBinary()
}

// UnmarshalBloomFilter decodes the wire format produced by MarshalBinary.
func UnmarshalBloomFilter(data []byte) (*BloomFilter, error) {
	if len(data) == 0 {
		return &BloomFilter{}, nil
	}
	filter := &bloomlib.BloomFilter{}
	if err := filter.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("bloom: unmarshal: %w", err)
	}
	return &BloomFilter{filter: filter}, nil
}

func putUint32LE(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}
