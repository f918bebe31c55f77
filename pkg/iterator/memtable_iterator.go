package iterator

import (
	"bytes"
	"math"

	"github.com/nobletooth/strata/pkg/storage"
)

// MemtableIterator layers MVCC snapshot visibility and tombstone-skipping on top of a raw
// memtable Cursor (§4.7, §4.8). Within one user-key's run of versions the cursor already visits
// them newest-timestamp-first, so the visible version at a snapshot timestamp is simply the first
// one encountered with timestamp <= snapshotTimestamp; everything else in that run, and the
// key entirely if that version is a tombstone, is skipped.
//
// Moving backward to the previous user-key does not walk the cursor's Prev chain entry by entry:
// it seeks to the current run's newest entry, steps Prev once onto the previous run's oldest
// entry, then seeks that user-key at the snapshot timestamp to land on its visible version,
// repeating for earlier runs while a run has no visible version or resolves to a tombstone.
type MemtableIterator struct {
	cursor            *storage.Cursor
	snapshotTimestamp uint64
}

var _ Iterator = (*MemtableIterator)(nil)

// NewMemtableIterator returns an iterator over mt visible as of snapshotTimestamp.
func NewMemtableIterator(mt *storage.Memtable, snapshotTimestamp uint64) *MemtableIterator {
	return &MemtableIterator{cursor: mt.NewCursor(), snapshotTimestamp: snapshotTimestamp}
}

// landVisibleForward advances the cursor forward, if needed, until it sits on an entry whose
// timestamp is visible and whose value is present, skipping stale versions within a run and
// entire runs that resolve to a tombstone. Safe to call when the cursor is already on a visible
// entry (both checks are no-ops in that case).
func (it *MemtableIterator) landVisibleForward() (bool, error) {
	for it.cursor.Valid() {
		fullKey := it.cursor.FullKey()
		user := storage.UserKey(fullKey)
		if storage.Timestamp(fullKey) > it.snapshotTimestamp {
			it.cursor.Next()
			continue
		}
		if _, present := storage.DecodeValueSlot(it.cursor.Value()); present {
			return true, nil
		}
		// Tombstoned as of the snapshot: the whole run is dead, skip to the next user-key's run.
		it.cursor.SeekForPrev(storage.FullKey(user, 0))
		it.cursor.Next()
	}
	return false, nil
}

// seekGroupVisible positions the cursor on user's visible version (if any) and reports whether
// one exists. On failure the cursor may be left anywhere at or after user's run.
func (it *MemtableIterator) seekGroupVisible(user []byte) bool {
	it.cursor.Seek(storage.FullKey(user, it.snapshotTimestamp))
	if !it.cursor.Valid() || !bytes.Equal(storage.UserKey(it.cursor.FullKey()), user) {
		return false
	}
	_, present := storage.DecodeValueSlot(it.cursor.Value())
	return present
}

// prevVisibleGroupBefore positions the cursor on the visible version of the nearest user-key run
// strictly before user, skipping any run that resolves to a tombstone.
func (it *MemtableIterator) prevVisibleGroupBefore(user []byte) bool {
	cur := user
	for {
		it.cursor.Seek(storage.FullKey(cur, math.MaxUint64)) // cur's newest-first entry, if any.
		it.cursor.Prev()                                     // Previous run's oldest entry, or invalid.
		if !it.cursor.Valid() {
			return false
		}
		prevUser := storage.UserKey(it.cursor.FullKey())
		if it.seekGroupVisible(prevUser) {
			return true
		}
		cur = prevUser
	}
}

func (it *MemtableIterator) Seek(s Seek) (bool, error) {
	switch s.Kind {
	case SeekFirst:
		it.cursor.SeekToFirst()
		found, err := it.landVisibleForward()
		return found, err
	case SeekLast:
		it.cursor.SeekToLast()
		if !it.cursor.Valid() {
			return false, nil
		}
		lastUser := storage.UserKey(it.cursor.FullKey())
		if it.seekGroupVisible(lastUser) {
			return true, nil
		}
		return it.prevVisibleGroupBefore(lastUser), nil
	case SeekRandomForward:
		it.cursor.Seek(storage.FullKey(s.Target, it.snapshotTimestamp))
		ok, err := it.landVisibleForward()
		if err != nil {
			return false, err
		}
		return ok && bytes.Equal(storage.UserKey(it.cursor.FullKey()), s.Target), nil
	case SeekRandomBackward:
		if it.seekGroupVisible(s.Target) {
			return true, nil
		}
		it.prevVisibleGroupBefore(s.Target)
		return false, nil
	}
	return false, nil
}

func (it *MemtableIterator) Next() error {
	requireValid("memtable_iterator", it.IsValid())
	user := storage.UserKey(it.cursor.FullKey())
	it.cursor.SeekForPrev(storage.FullKey(user, 0)) // Last (oldest) entry of the current run.
	it.cursor.Next()                                // First entry of the next run, or invalid.
	_, err := it.landVisibleForward()
	return err
}

func (it *MemtableIterator) Prev() error {
	requireValid("memtable_iterator", it.IsValid())
	user := storage.UserKey(it.cursor.FullKey())
	it.prevVisibleGroupBefore(user)
	return nil
}

func (it *MemtableIterator) Key() []byte {
	requireValid("memtable_iterator", it.IsValid())
	return storage.UserKey(it.cursor.FullKey())
}

func (it *MemtableIterator) Value() []byte {
	requireValid("memtable_iterator", it.IsValid())
	v, _ := storage.DecodeValueSlot(it.cursor.Value())
	return v
}

func (it *MemtableIterator) IsValid() bool { return it.cursor.Valid() }
