// Blocks are the smallest unit of on-disk storage in an SSTable: an ordered run of full-key/
// value-slot pairs with periodic restart points that anchor binary search and bound how much
// prefix compression must be undone to read any single entry.
//
// Layout (§3, §6.3):
//
//	entry:   key_diff_len:u16 | shared_prefix_len:u16 | value_len:u32 | key_suffix | value
//	trailer: restart_offset[0..R-1]:u32 | R:u32 | compression_type:u8 | crc32:u32
//
// Compression (none or LZ4) covers only the entry section; the restart table, restart count,
// compression tag, and CRC are always stored uncompressed.
package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// CompressionType selects how a block's entry section is stored on disk.
type CompressionType uint8

const (
	CompressionNone CompressionType = 0
	CompressionLZ4  CompressionType = 1
)

// defaultRestartInterval matches the teacher's on-disk framing cadence: one restart key every
// 16 entries, trading a little search time for a lot less duplicated key material.
const defaultRestartInterval = 16

// bufferPool reuses builder/iterator scratch buffers across blocks, same idiom the original
// protobuf-framed block reader/writer used for its read/write buffers.
var bufferPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// BlockBuilder accepts full_key/value pairs in strictly ascending order and produces an encoded
// block. Restart points are emitted every restartInterval entries as an uncompressed full key;
// entries between restarts store only the suffix past the shared prefix with the previous key.
type BlockBuilder struct {
	restartInterval int
	compression     CompressionType

	buf           bytes.Buffer // Encoded entries (pre-compression).
	restartPoints []uint32     // Byte offsets into buf where a restart key begins.
	entryCount    int
	lastKey       []byte
}

// NewBlockBuilder constructs a builder with the given restart interval (<=0 uses the default)
// and compression type for the entry section.
func NewBlockBuilder(restartInterval int, compression CompressionType) *BlockBuilder {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &BlockBuilder{restartInterval: restartInterval, compression: compression}
}

// Add appends a full_key/value pair. Callers must supply full keys in strictly ascending order;
// this is an ordering invariant (§5), violating it is a programmer fault the caller must not do.
func (b *BlockBuilder) Add(fullKey, value []byte) {
	isRestart := b.entryCount%b.restartInterval == 0
	sharedLen := 0
	if !isRestart {
		sharedLen = KeyDiff(b.lastKey, fullKey)
	}
	if isRestart {
		b.restartPoints = append(b.restartPoints, uint32(b.buf.Len()))
	}

	suffix := fullKey[sharedLen:]
	var header [8]byte
	binary.LittleEndian.PutUint16(header[0:2], uint16(len(suffix)))
	binary.LittleEndian.PutUint16(header[2:4], uint16(sharedLen))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(value)))
	b.buf.Write(header[:])
	b.buf.Write(suffix)
	b.buf.Write(value)

	b.lastKey = append(b.lastKey[:0], fullKey...)
	b.entryCount++
}

// EntryCount returns the number of entries added so far.
func (b *BlockBuilder) EntryCount() int { return b.entryCount }

// ApproximateLen estimates the final encoded size, used by the SSTable builder to decide when a
// block is full; it is deliberately cheap (no compression performed) rather than exact: it counts
// the entry section, restart table, and restart count, but not the compression tag or CRC.
func (b *BlockBuilder) ApproximateLen() int {
	return b.buf.Len() + 4*len(b.restartPoints) + 4 /*restart count*/
}

// Build finalizes the block: compresses the entry section if requested, appends the restart
// table, restart count, compression tag, and a trailing CRC32 covering every byte before it.
func (b *BlockBuilder) Build() ([]byte, error) {
	entries := b.buf.Bytes()
	switch b.compression {
	case CompressionNone:
		// entries already holds the right bytes.
	case CompressionLZ4:
		compressed := make([]byte, lz4.CompressBlockBound(len(entries)))
		n, err := lz4.CompressBlock(entries, compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("block: lz4 compress: %w", err)
		}
		if n == 0 { // Incompressible; lz4 declines, fall back to storing raw with CompressionNone.
			b.compression = CompressionNone
		} else {
			entries = compressed[:n]
		}
	default:
		return nil, fmt.Errorf("block: unknown compression type %d", b.compression)
	}

	out := bufferPool.Get().(*bytes.Buffer)
	out.Reset()
	defer bufferPool.Put(out)

	if b.compression == CompressionLZ4 {
		// Store the uncompressed length so the reader can size its decompression buffer.
		var rawLen [4]byte
		binary.LittleEndian.PutUint32(rawLen[:], uint32(b.buf.Len()))
		out.Write(rawLen[:])
	}
	out.Write(entries)
	for _, off := range b.restartPoints {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], off)
		out.Write(tmp[:])
	}
	var restartCount [4]byte
	binary.LittleEndian.PutUint32(restartCount[:], uint32(len(b.restartPoints)))
	out.Write(restartCount[:])
	out.WriteByte(byte(b.compression))

	checksum := crc32.ChecksumIEEE(out.Bytes())
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], checksum)
	out.Write(crcBuf[:])

	result := make([]byte, out.Len())
	copy(result, out.Bytes())
	return result, nil
}

// Reset clears the builder so it can be reused for the next block.
func (b *BlockBuilder) Reset() {
	b.buf.Reset()
	b.restartPoints = b.restartPoints[:0]
	b.entryCount = 0
	b.lastKey = b.lastKey[:0]
}

// decodedEntry is one fully-materialized (full_key, value) pair inside a decoded block.
type decodedEntry struct {
	fullKey []byte
	value   []byte
}

// Block is a decoded, immutable in-memory block ready for bidirectional iteration.
type Block struct {
	entries       []decodedEntry
	restartPoints []int // Indices into entries.
}

var (
	ErrBlockTooShort  = errors.New("block: encoded data shorter than trailer")
	ErrBlockChecksum  = errors.New("block: checksum mismatch")
	ErrBlockDecode    = errors.New("block: malformed entry")
	ErrUnknownCompKnd = errors.New("block: unknown compression type")
)

// DecodeBlock parses raw on-disk bytes produced by BlockBuilder.Build into a Block.
func DecodeBlock(raw []byte) (*Block, error) {
	const trailerFixed = 4 /*restart count*/ + 1 /*compression*/ + 4 /*crc*/
	if len(raw) < trailerFixed {
		return nil, ErrBlockTooShort
	}

	crcField := raw[len(raw)-4:]
	wantCRC := binary.LittleEndian.Uint32(crcField)
	gotCRC := crc32.ChecksumIEEE(raw[:len(raw)-4])
	if wantCRC != gotCRC {
		return nil, ErrBlockChecksum
	}

	compression := CompressionType(raw[len(raw)-5])
	restartCount := binary.LittleEndian.Uint32(raw[len(raw)-9 : len(raw)-5])
	restartTableLen := 4 * int(restartCount)
	restartTableEnd := len(raw) - trailerFixed
	restartTableStart := restartTableEnd - restartTableLen
	if restartTableStart < 0 {
		return nil, ErrBlockTooShort
	}

	restartPoints := make([]int, restartCount)
	for i := range restartPoints {
		off := binary.LittleEndian.Uint32(raw[restartTableStart+4*i : restartTableStart+4*i+4])
		restartPoints[i] = int(off)
	}

	entrySection := raw[:restartTableStart]
	var entries []byte
	switch compression {
	case CompressionNone:
		entries = entrySection
	case CompressionLZ4:
		if len(entrySection) < 4 {
			return nil, ErrBlockTooShort
		}
		rawLen := binary.LittleEndian.Uint32(entrySection[:4])
		entries = make([]byte, rawLen)
		if _, err := lz4.UncompressBlock(entrySection[4:], entries); err != nil {
			return nil, fmt.Errorf("block: lz4 decompress: %w", err)
		}
	default:
		return nil, ErrUnknownCompKnd
	}

	decoded := make([]decodedEntry, 0, restartCount*uint32(defaultRestartInterval))
	var lastKey []byte
	pos := 0
	for pos < len(entries) {
		if pos+8 > len(entries) {
			return nil, ErrBlockDecode
		}
		suffixLen := int(binary.LittleEndian.Uint16(entries[pos : pos+2]))
		sharedLen := int(binary.LittleEndian.Uint16(entries[pos+2 : pos+4]))
		valueLen := int(binary.LittleEndian.Uint32(entries[pos+4 : pos+8]))
		pos += 8
		if pos+suffixLen+valueLen > len(entries) {
			return nil, ErrBlockDecode
		}
		suffix := entries[pos : pos+suffixLen]
		pos += suffixLen
		value := entries[pos : pos+valueLen]
		pos += valueLen

		fullKey := make([]byte, sharedLen+suffixLen)
		copy(fullKey, lastKey[:sharedLen])
		copy(fullKey[sharedLen:], suffix)

		decoded = append(decoded, decodedEntry{fullKey: fullKey, value: value})
		lastKey = fullKey
	}

	// restartPoints on disk are byte offsets into the (decompressed) entry section; translate to
	// entry indices by re-walking once more, matching offsets as they're produced.
	indices := make([]int, 0, len(restartPoints))
	if len(restartPoints) > 0 {
		pos = 0
		entryIdx := 0
		rpIdx := 0
		for pos < len(entries) && rpIdx < len(restartPoints) {
			if pos == restartPoints[rpIdx] {
				indices = append(indices, entryIdx)
				rpIdx++
			}
			suffixLen := int(binary.LittleEndian.Uint16(entries[pos : pos+2]))
			valueLen := int(binary.LittleEndian.Uint32(entries[pos+4 : pos+8]))
			pos += 8 + suffixLen + valueLen
			entryIdx++
		}
	}

	return &Block{entries: decoded, restartPoints: indices}, nil
}

// Len returns the number of entries in the block.
func (blk *Block) Len() int { return len(blk.entries) }

// EntryAt returns the full key and value at entry index i.
func (blk *Block) EntryAt(i int) (fullKey, value []byte) {
	e := blk.entries[i]
	return e.fullKey, e.value
}

// RestartPoints returns the entry indices that are restart points, ascending.
func (blk *Block) RestartPoints() []int { return blk.restartPoints }

// Seek returns the index of the first entry whose full key is >= target, or Len() if none.
// It first binary-searches restart points (each an uncompressed anchor key), then scans linearly
// within the selected restart group, matching the builder's prefix-compression grouping.
func (blk *Block) Seek(target []byte) int {
	if len(blk.entries) == 0 {
		return 0
	}
	// Binary search over restart points for the last one with key <= target.
	lo, hi := 0, len(blk.restartPoints)-1
	group := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		fk, _ := blk.EntryAt(blk.restartPoints[mid])
		if bytesCompare(fk, target) <= 0 {
			group = blk.restartPoints[mid]
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	// Linear scan within [group, next restart or end).
	for i := group; i < len(blk.entries); i++ {
		fk, _ := blk.EntryAt(i)
		if bytesCompare(fk, target) >= 0 {
			return i
		}
	}
	return len(blk.entries)
}

func bytesCompare(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
