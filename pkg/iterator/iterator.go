// Package iterator implements the uniform bidirectional cursor protocol every storage engine
// component (blocks, SSTables, memtables, concatenations, k-way merges) is read through (§4.8).
package iterator

import (
	"bytes"

	"github.com/nobletooth/strata/pkg/utils"
)

// SeekKind selects where a Seek call positions the iterator.
type SeekKind int

const (
	SeekFirst SeekKind = iota
	SeekLast
	SeekRandomForward  // Smallest key >= target.
	SeekRandomBackward // Largest key <= target.
)

// Seek bundles a SeekKind with the target key RandomForward/RandomBackward need.
type Seek struct {
	Kind   SeekKind
	Target []byte
}

// First returns a Seek positioning at the smallest visible key.
func First() Seek { return Seek{Kind: SeekFirst} }

// Last returns a Seek positioning at the largest visible key.
func Last() Seek { return Seek{Kind: SeekLast} }

// RandomForward returns a Seek positioning at the smallest visible key >= target.
func RandomForward(target []byte) Seek { return Seek{Kind: SeekRandomForward, Target: target} }

// RandomBackward returns a Seek positioning at the largest visible key <= target.
func RandomBackward(target []byte) Seek { return Seek{Kind: SeekRandomBackward, Target: target} }

// Iterator is the uniform contract every cursor in the engine implements (§4.8). State machine:
// Uninitialized -> Positioned(valid=true|false), transitioning only through Seek/Next/Prev.
// Calling Next/Prev/Key/Value while !IsValid is a programmer error, enforced via invariant.
type Iterator interface {
	// Seek positions the iterator and reports whether it landed on an exact match (only
	// meaningful for SeekRandomForward/SeekRandomBackward).
	Seek(s Seek) (found bool, err error)
	// Next advances to the next key in iteration order. Requires IsValid().
	Next() error
	// Prev moves to the previous key in iteration order. Requires IsValid().
	Prev() error
	// Key returns the current key: a bare user-key for MemtableIterator (which never surfaces
	// tombstones as valid positions), the stored full key for the raw BlockIterator and
	// SstableIterator; ConcatIterator and MergeIterator return what their children return.
	Key() []byte
	// Value returns the current value: the value bytes without the value tag for
	// MemtableIterator, the stored value slot (tag byte included) for the raw iterators.
	Value() []byte
	// IsValid reports whether the iterator is positioned on a real entry.
	IsValid() bool
}

// requireValid raises an invariant violation if it is not; use at the top of Next/Prev/Key/Value
// implementations so misuse is visible in tests (utils.IsTestMode panics) without crashing
// production processes outright.
func requireValid(module string, valid bool) {
	if !valid {
		utils.RaiseInvariant(module, "invalid_iterator_use",
			"Next/Prev/Key/Value called on an iterator that is not positioned on a valid entry.")
	}
}

// compareBytes is the shared three-way byte comparator used throughout the iterator family.
func compareBytes(a, b []byte) int { return bytes.Compare(a, b) }
