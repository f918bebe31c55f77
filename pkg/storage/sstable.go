// SSTables are immutable, sorted runs of blocks. A table's metadata (block boundaries and the
// bloom filter) is stored separately from its data so callers can keep the small metadata
// resident while streaming data blocks on demand (§4.4).
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// BlockMeta locates one block within an SSTable's data object and bounds its full-key range.
type BlockMeta struct {
	Offset   uint32
	Len      uint32
	FirstKey []byte
	LastKey  []byte
}

// Encode writes a BlockMeta in the §6.3 wire format:
// offset:u32_le | len:u32_le | fk_len:u32_le | lk_len:u32_le | fk | lk.
func (m *BlockMeta) Encode() []byte {
	out := make([]byte, 16+len(m.FirstKey)+len(m.LastKey))
	binary.LittleEndian.PutUint32(out[0:4], m.Offset)
	binary.LittleEndian.PutUint32(out[4:8], m.Len)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(m.FirstKey)))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(m.LastKey)))
	n := copy(out[16:], m.FirstKey)
	copy(out[16+n:], m.LastKey)
	return out
}

// DecodeBlockMeta reads one BlockMeta from data, returning the number of bytes consumed.
func DecodeBlockMeta(data []byte) (*BlockMeta, int, error) {
	if len(data) < 16 {
		return nil, 0, fmt.Errorf("%w: block meta truncated", ErrBlockDecode)
	}
	offset := binary.LittleEndian.Uint32(data[0:4])
	length := binary.LittleEndian.Uint32(data[4:8])
	fkLen := binary.LittleEndian.Uint32(data[8:12])
	lkLen := binary.LittleEndian.Uint32(data[12:16])
	end := 16 + int(fkLen) + int(lkLen)
	if len(data) < end {
		return nil, 0, fmt.Errorf("%w: block meta key bytes truncated", ErrBlockDecode)
	}
	firstKey := append([]byte(nil), data[16:16+fkLen]...)
	lastKey := append([]byte(nil), data[16+fkLen:end]...)
	return &BlockMeta{Offset: offset, Len: length, FirstKey: firstKey, LastKey: lastKey}, end, nil
}

// DataRange returns the [lo, hi) byte range this block occupies in the data object.
func (m *BlockMeta) DataRange() (lo, hi int64) {
	return int64(m.Offset), int64(m.Offset) + int64(m.Len)
}

// SstableMeta is the decoded content of an SSTable's `.meta` object: block boundaries plus an
// optional bloom filter over user-key fingerprints.
type SstableMeta struct {
	BlockMetas []*BlockMeta
	Bloom      *BloomFilter
}

// Encode produces the §6.3 wire format:
// crc32:u32_le | n:u32_le | block_metas[n] | bloom_len:u32_le | bloom_bytes.
// The body (everything after the checksum field) is encoded first; its checksum is then written
// ahead of it as the leading field.
func (m *SstableMeta) Encode() ([]byte, error) {
	bloomBytes, err := m.Bloom.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("sstable meta: encode bloom: %w", err)
	}

	body := make([]byte, 0, 4+len(m.BlockMetas)*32+4+len(bloomBytes))
	var nBuf [4]byte
	binary.LittleEndian.PutUint32(nBuf[:], uint32(len(m.BlockMetas)))
	body = append(body, nBuf[:]...)
	for _, bm := range m.BlockMetas {
		body = append(body, bm.Encode()...)
	}
	var bloomLenBuf [4]byte
	binary.LittleEndian.PutUint32(bloomLenBuf[:], uint32(len(bloomBytes)))
	body = append(body, bloomLenBuf[:]...)
	body = append(body, bloomBytes...)

	checksum := crc32.ChecksumIEEE(body)
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out[0:4], checksum)
	copy(out[4:], body)
	return out, nil
}

// DecodeSstableMeta parses the §6.3 meta wire format, verifying the CRC before trusting any field.
func DecodeSstableMeta(data []byte) (*SstableMeta, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: sstable meta truncated", ErrBlockDecode)
	}
	wantCRC := binary.LittleEndian.Uint32(data[0:4])
	body := data[4:]
	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, ErrBlockChecksum
	}

	n := binary.LittleEndian.Uint32(body[0:4])
	pos := 4
	blockMetas := make([]*BlockMeta, 0, n)
	for i := uint32(0); i < n; i++ {
		bm, consumed, err := DecodeBlockMeta(body[pos:])
		if err != nil {
			return nil, err
		}
		blockMetas = append(blockMetas, bm)
		pos += consumed
	}

	if pos+4 > len(body) {
		return nil, fmt.Errorf("%w: sstable meta bloom length truncated", ErrBlockDecode)
	}
	bloomLen := binary.LittleEndian.Uint32(body[pos : pos+4])
	pos += 4
	if pos+int(bloomLen) > len(body) {
		return nil, fmt.Errorf("%w: sstable meta bloom bytes truncated", ErrBlockDecode)
	}
	bloom, err := UnmarshalBloomFilter(body[pos : pos+int(bloomLen)])
	if err != nil {
		return nil, err
	}

	return &SstableMeta{BlockMetas: blockMetas, Bloom: bloom}, nil
}

// SstableID identifies an SSTable within an SSTable store.
type SstableID uint64

// Sstable is a handle to an immutable table: its resident metadata plus the ID used to address
// its data object.
type Sstable struct {
	ID   SstableID
	Meta *SstableMeta
}

// SstableBuilderOptions tunes an SstableBuilder.
type SstableBuilderOptions struct {
	BlockCapacity     int // Approximate max encoded size of a block before it is sealed.
	BloomFalsePosRate float64
	Compression       CompressionType
	RestartInterval   int
}

// DefaultSstableBuilderOptions returns the teacher's defaults adapted to this wire format.
func DefaultSstableBuilderOptions() SstableBuilderOptions {
	return SstableBuilderOptions{
		BlockCapacity:     4096,
		BloomFalsePosRate: 0.01,
		Compression:       CompressionNone,
		RestartInterval:   defaultRestartInterval,
	}
}

// SstableBuilder accepts (user_key, timestamp, value_slot) triples in ascending full-key order
// and produces the data bytes plus metadata for one SSTable (§4.4).
type SstableBuilder struct {
	options SstableBuilderOptions

	dataBuf      []byte
	blockBuilder *BlockBuilder
	blockMetas   []*BlockMeta
	fingerprints []uint32

	curFirstKey []byte
	lastFullKey []byte
	blockCount  uint32
}

// NewSstableBuilder constructs a builder with the given options.
func NewSstableBuilder(options SstableBuilderOptions) *SstableBuilder {
	if options.BlockCapacity <= 0 {
		options.BlockCapacity = DefaultSstableBuilderOptions().BlockCapacity
	}
	return &SstableBuilder{
		options:      options,
		blockBuilder: NewBlockBuilder(options.RestartInterval, options.Compression),
	}
}

// ErrDescendingKey is returned by Add (no invariant is raised) when Add observes a full key that does not strictly ascend from the previous Add call; within one SSTable build
// this ordering is a caller contract, not a recoverable condition (§5).
var ErrDescendingKey = errors.New("sstable: add called with non-ascending full key")

// Add appends one (user_key, timestamp, value_slot) triple. Calls must be strictly ascending by
// full key; violating this is a programmer fault (§5 Ordering guarantees).
func (b *SstableBuilder) Add(userKey []byte, timestamp uint64, valueSlot []byte) error {
	fullKey := FullKey(userKey, timestamp)
	if b.lastFullKey != nil && bytesCompare(fullKey, b.lastFullKey) <= 0 {
		return fmt.Errorf("%w: %x <= %x", ErrDescendingKey, fullKey, b.lastFullKey)
	}

	if b.blockBuilder.EntryCount() == 0 {
		b.curFirstKey = append([]byte(nil), fullKey...)
	}

	b.blockBuilder.Add(fullKey, valueSlot)
	b.fingerprints = append(b.fingerprints, Fingerprint32(userKey))
	b.lastFullKey = append(b.lastFullKey[:0], fullKey...)

	if b.blockBuilder.ApproximateLen() >= b.options.BlockCapacity {
		if err := b.sealBlock(); err != nil {
			return err
		}
	}
	return nil
}

// sealBlock finalizes the current block builder's contents into the data buffer and records its
// BlockMeta, then resets the builder for the next block.
func (b *SstableBuilder) sealBlock() error {
	if b.blockBuilder.EntryCount() == 0 {
		return nil
	}
	encoded, err := b.blockBuilder.Build()
	if err != nil {
		return fmt.Errorf("sstable: seal block: %w", err)
	}
	offset := uint32(len(b.dataBuf))
	b.dataBuf = append(b.dataBuf, encoded...)

	b.blockMetas = append(b.blockMetas, &BlockMeta{
		Offset:   offset,
		Len:      uint32(len(encoded)),
		FirstKey: b.curFirstKey,
		LastKey:  append([]byte(nil), b.lastFullKey...),
	})
	b.blockCount++
	b.blockBuilder.Reset()
	b.curFirstKey = nil
	return nil
}

// Build seals any pending block, appends the trailing block-count word to the data object, and
// constructs the bloom filter when a false-positive rate was requested. It returns the data
// object bytes and the metadata to be stored separately (§4.4, §6.3).
func (b *SstableBuilder) Build() (data []byte, meta *SstableMeta, err error) {
	if err := b.sealBlock(); err != nil {
		return nil, nil, err
	}

	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], b.blockCount)
	data = append(b.dataBuf, trailer[:]...)

	var bloom *BloomFilter
	if b.options.BloomFalsePosRate > 0 && len(b.fingerprints) > 0 {
		bloom = BuildBloomFilter(b.fingerprints, b.options.BloomFalsePosRate)
	}

	meta = &SstableMeta{BlockMetas: b.blockMetas, Bloom: bloom}
	return data, meta, nil
}
