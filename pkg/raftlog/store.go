package raftlog

import (
	"context"
	"flag"
	"fmt"
	"runtime"
	"time"

	"github.com/nobletooth/strata/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entryCacheCapacity = flag.Int("raftlog_entry_cache_capacity", 4096,
		"The maximum number of raft log batch data segments to keep in the shared entry read cache; 0 disables it.")
	entryCacheShardCount = flag.Int("raftlog_entry_cache_shard_count", runtime.NumCPU(),
		"The number of shards to keep in the raft log entry read cache.")
	entryCacheTTL = flag.Duration("raftlog_entry_cache_ttl", 5*time.Minute,
		"The TTL for each entry in the raft log entry read cache.")

	appendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "raft_log_store_append_latency_seconds",
		Help: "Latency of RaftLogStore.Append calls.",
	})
	entryCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raft_log_store_entry_cache_lookups_total",
		Help: "Total number of raft log entry read cache lookups.",
	}, []string{"status"})
)

// entryCacheKey addresses one RaftLogBatch's data segment (the raw bytes of all its entries)
// within one log segment.
type entryCacheKey struct {
	fileID uint64
	offset int
	length int
}

// Options configures a RaftLogStore.
type Options struct {
	LogDirPath      string
	LogFileCapacity int64 // Bytes per segment before rotating; 0 means unbounded.
}

// RaftLogStore is a multi-group raft log: an append-only sequence of log segments shared by every
// group, with each group's visible index range tracked in memory and replayed from the segments
// on open. Entry and index compaction only ever trims in-memory state and tail-side disk space;
// a replayed-but-unreferenced prefix of old segments is reclaimed once every group has compacted
// past it.
type RaftLogStore struct {
	segments   *segmentManager
	states     *MemStates
	entryCache cache.Layer[entryCacheKey, []byte]
}

// Open replays the on-disk log into memory and returns a ready-to-use store.
func Open(ctx context.Context, opts Options) (*RaftLogStore, error) {
	sm, err := openSegmentManager(opts.LogDirPath, opts.LogFileCapacity)
	if err != nil {
		return nil, err
	}

	store := &RaftLogStore{
		segments:   sm,
		states:     NewMemStates(),
		entryCache: cache.NewNoOp[entryCacheKey, []byte](),
	}
	if *entryCacheCapacity > 0 && *entryCacheShardCount > 0 {
		newShard := func() cache.Layer[entryCacheKey, []byte] {
			return cache.NewHyperClock[entryCacheKey, []byte](ctx,
				max(*entryCacheCapacity/max(*entryCacheShardCount, 1), 1), time.Second,
				func(entryCacheKey, []byte) {})
		}
		if *entryCacheShardCount > 1 {
			store.entryCache = cache.NewShardedCache(newShard, *entryCacheShardCount)
		} else {
			store.entryCache = newShard()
		}
	}

	if err := sm.replay(store.replayOne); err != nil {
		return nil, fmt.Errorf("raftlog: replay: %w", err)
	}
	return store, nil
}

func (s *RaftLogStore) replayOne(fileID uint64, writeOffset int64, tag entryTag, payload []byte) error {
	switch tag {
	case tagRaftLogBatch:
		batch, err := decodeRaftLogBatch(payload)
		if err != nil {
			return err
		}
		state := s.states.MayAddGroup(batch.Group)
		blockOffset := int(writeOffset) + envelopeHeaderLen + batch.dataSegmentOffset()
		entries := make([]EntryIndex, len(batch.Entries))
		for i := range batch.Entries {
			off, length := batch.Location(i)
			entries[i] = EntryIndex{
				Term:        batch.Term,
				FileID:      fileID,
				BlockOffset: blockOffset,
				BlockLen:    len(payload) - batch.dataSegmentOffset(),
				Offset:      off,
				Len:         length,
			}
		}
		return state.Append(batch.FirstIndex, entries)
	case tagCompact:
		group, index, err := decodeCompact(payload)
		if err != nil {
			return err
		}
		s.states.MayAddGroup(group).Compact(index)
		return nil
	case tagKvPut:
		group, key, value, err := decodeKvPut(payload)
		if err != nil {
			return err
		}
		s.states.MayAddGroup(group).Put(key, value)
		return nil
	case tagKvDelete:
		group, key, err := decodeKvDelete(payload)
		if err != nil {
			return err
		}
		s.states.MayAddGroup(group).Delete(key)
		return nil
	default:
		return fmt.Errorf("%w: tag %d", ErrUnknownTag, tag)
	}
}

// AddGroup registers a brand-new raft group with no log entries yet.
func (s *RaftLogStore) AddGroup(group uint64) error {
	_, err := s.states.AddGroup(group)
	return err
}

// RemoveGroup drops a group's in-memory index; its already-written log bytes are reclaimed the
// next time every remaining group has compacted past them.
func (s *RaftLogStore) RemoveGroup(group uint64) {
	s.states.RemoveGroup(group)
}

// Append writes a batch of consecutive raft log entries for group, starting at firstIndex under
// the given term, and extends that group's in-memory index to cover them.
func (s *RaftLogStore) Append(group, term, firstIndex uint64, entries [][]byte) error {
	start := time.Now()
	defer func() { appendLatency.Observe(time.Since(start).Seconds()) }()

	state, err := s.states.Get(group)
	if err != nil {
		return err
	}
	batch := &RaftLogBatch{Group: group, Term: term, FirstIndex: firstIndex, Entries: entries}
	payload := batch.encode()
	envelope := encodeEnvelope(tagRaftLogBatch, payload)

	fileID, writeOffset, err := s.segments.Append(envelope)
	if err != nil {
		return err
	}

	blockOffset := int(writeOffset) + envelopeHeaderLen + batch.dataSegmentOffset()
	idxs := make([]EntryIndex, len(entries))
	for i := range entries {
		off, length := batch.Location(i)
		idxs[i] = EntryIndex{
			Term:        term,
			FileID:      fileID,
			BlockOffset: blockOffset,
			BlockLen:    len(payload) - batch.dataSegmentOffset(),
			Offset:      off,
			Len:         length,
		}
	}
	return state.Append(firstIndex, idxs)
}

// Sync flushes pending writes to stable storage.
func (s *RaftLogStore) Sync() error { return s.segments.Sync() }

// Close flushes and closes the active segment.
func (s *RaftLogStore) Close() error { return s.segments.Close() }

// Compact writes a durable compaction marker for group and drops its in-memory entries below
// index.
func (s *RaftLogStore) Compact(group, index uint64) error {
	state, err := s.states.Get(group)
	if err != nil {
		return err
	}
	envelope := encodeEnvelope(tagCompact, encodeCompact(group, index))
	if _, _, err := s.segments.Append(envelope); err != nil {
		return err
	}
	state.Compact(index)
	return s.reclaimSegments()
}

// reclaimSegments removes every on-disk segment strictly older than the oldest segment any group
// still references, now that compaction may have dropped the last reference to it.
func (s *RaftLogStore) reclaimSegments() error {
	minLive, found := s.states.minLiveFileID()
	if !found {
		return nil
	}
	ids, err := s.segments.segments()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id >= minLive {
			break // segments() is ascending; nothing older remains once we hit minLive.
		}
		if err := s.segments.removeSegment(id); err != nil {
			return err
		}
	}
	return nil
}

// Term returns the term recorded for one index of group.
func (s *RaftLogStore) Term(group, index uint64) (uint64, error) {
	state, err := s.states.Get(group)
	if err != nil {
		return 0, err
	}
	return state.Term(index), nil
}

// FirstIndex and NextIndex expose a group's current visible index bounds.
func (s *RaftLogStore) FirstIndex(group uint64) (uint64, error) {
	state, err := s.states.Get(group)
	if err != nil {
		return 0, err
	}
	return state.FirstIndex(false), nil
}

func (s *RaftLogStore) NextIndex(group uint64) (uint64, error) {
	state, err := s.states.Get(group)
	if err != nil {
		return 0, err
	}
	return state.NextIndex(false), nil
}

// Entries reads and decodes every raw entry for group in [lo, hi), reading each one's bytes
// through the shared entry cache.
func (s *RaftLogStore) Entries(group, lo, hi uint64) ([][]byte, error) {
	state, err := s.states.Get(group)
	if err != nil {
		return nil, err
	}
	idxs, err := state.Entries(lo, hi)
	if err != nil {
		return nil, err
	}
	return s.readEntries(idxs)
}

func (s *RaftLogStore) readEntries(idxs []EntryIndex) ([][]byte, error) {
	out := make([][]byte, len(idxs))
	for i, idx := range idxs {
		key := entryCacheKey{fileID: idx.FileID, offset: idx.BlockOffset, length: idx.BlockLen}
		block, ok := s.entryCache.Get(key)
		if ok {
			entryCacheLookups.WithLabelValues("hit").Inc()
		} else {
			entryCacheLookups.WithLabelValues("miss").Inc()
			var err error
			block, err = s.segments.ReadAt(idx.FileID, int64(idx.BlockOffset), idx.BlockLen)
			if err != nil {
				return nil, err
			}
			s.entryCache.Add(key, block, *entryCacheTTL)
		}
		out[i] = append([]byte(nil), block[idx.Offset:idx.Offset+idx.Len]...)
	}
	return out, nil
}

// Put durably stashes a raw key/value pair alongside group's log.
func (s *RaftLogStore) Put(group uint64, key, value []byte) error {
	state, err := s.states.Get(group)
	if err != nil {
		return err
	}
	envelope := encodeEnvelope(tagKvPut, encodeKvPut(group, key, value))
	if _, _, err := s.segments.Append(envelope); err != nil {
		return err
	}
	state.Put(key, value)
	return nil
}

// Get returns the stashed value for key under group.
func (s *RaftLogStore) Get(group uint64, key []byte) ([]byte, bool, error) {
	state, err := s.states.Get(group)
	if err != nil {
		return nil, false, err
	}
	v, ok := state.Get(key)
	return v, ok, nil
}

// Delete durably removes the stashed value for key under group.
func (s *RaftLogStore) Delete(group uint64, key []byte) error {
	state, err := s.states.Get(group)
	if err != nil {
		return err
	}
	envelope := encodeEnvelope(tagKvDelete, encodeKvDelete(group, key))
	if _, _, err := s.segments.Append(envelope); err != nil {
		return err
	}
	state.Delete(key)
	return nil
}
