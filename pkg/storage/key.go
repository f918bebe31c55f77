// Package storage implements the LSM-tree sorted-string-table engine: blocks, bloom filters,
// SSTables, the block cache, the SSTable store, the memtable, and the MVCC full-key encoding
// that ties all of them together.
package storage

import "encoding/binary"

// timestampSize is the number of bytes a timestamp occupies in a full key.
const timestampSize = 8

// FullKey concatenates a user key with its bit-inverted big-endian timestamp. Big-endian keeps
// the most significant byte first, so byte-lexicographic order on the inverted value matches
// numeric order; inverting it then makes lexicographic order on full keys equivalent to
// (user-key ascending, timestamp descending): the newest version of a user-key always sorts
// first among its versions.
func FullKey(userKey []byte, timestamp uint64) []byte {
	fk := make([]byte, len(userKey)+timestampSize)
	n := copy(fk, userKey)
	binary.BigEndian.PutUint64(fk[n:], ^timestamp)
	return fk
}

// UserKey extracts the user-key portion of a full key.
func UserKey(fullKey []byte) []byte {
	if len(fullKey) < timestampSize {
		return nil
	}
	return fullKey[:len(fullKey)-timestampSize]
}

// Timestamp extracts and un-inverts the timestamp portion of a full key.
func Timestamp(fullKey []byte) uint64 {
	if len(fullKey) < timestampSize {
		return 0
	}
	return ^binary.BigEndian.Uint64(fullKey[len(fullKey)-timestampSize:])
}

// KeyDiff returns the length of the shared prefix between two full keys, used by the block
// builder to apply restart-interval prefix compression.
func KeyDiff(a, b []byte) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Value-slot tags (§3): a single byte preceding the value bytes.
const (
	tagTombstone byte = 0
	tagPresent   byte = 1
)

// EncodeValueSlot prefixes value with its tag byte. A nil value with present=false encodes a tombstone.
func EncodeValueSlot(value []byte, present bool) []byte {
	if !present {
		return []byte{tagTombstone}
	}
	slot := make([]byte, 1+len(value))
	slot[0] = tagPresent
	copy(slot[1:], value)
	return slot
}

// DecodeValueSlot splits a value slot into its bytes (nil for tombstones) and presence flag.
func DecodeValueSlot(slot []byte) (value []byte, present bool) {
	if len(slot) == 0 || slot[0] == tagTombstone {
		return nil, false
	}
	return slot[1:], true
}
