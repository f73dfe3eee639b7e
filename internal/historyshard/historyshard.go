// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package historyshard implements the history shard (spec §4.7): for
// each address prefix, an append-only sequence of per-block entries,
// each a sorted, bucket-indexed run of fixed-size rows, supporting a
// prefix scan from a given height and rollback of the most recent
// entries. It backs the stealth table (spec §4.8).
//
// Layout, starting at headerOff:
//
//	[entries_end:8][slot[0]:8]...[slot[shard_max_entries-1]:8] <slots>
//	<entries...>
//
// Each entry is [row_count:2][bucket_index[number_buckets]:2 each][rows].
// A row is [scan_key:scan_size][value:row_value_size][checksum:4], the
// checksum a farm.Hash64 of value, checked on every Scan read.
package historyshard

import (
	"fmt"
	"sort"

	"github.com/dgryski/go-farm"

	"github.com/go-chainstore/chainstore/internal/bitutil"
	"github.com/go-chainstore/chainstore/internal/errkind"
	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/serialize"
)

// row is one in-memory buffered entry awaiting Sync.
type row struct {
	scanKey []byte
	value   []byte
}

// Shard is a history shard.
type Shard struct {
	mf        *mmapfile.File
	headerOff int64

	totalKeySize    int
	shardedBitsize  int
	bucketBitsize   int
	rowValueSize    int
	shardMaxEntries uint64

	scanBitsize   int
	scanSize      int
	numberBuckets int

	entriesStart int64 // first byte past the header+slots

	buffer []row
}

func deriveSizes(totalKeySize, shardedBitsize, bucketBitsize int) (scanBitsize, scanSize, numberBuckets int) {
	scanBitsize = totalKeySize*8 - shardedBitsize
	scanSize = (scanBitsize + 7) / 8
	numberBuckets = 1 << bucketBitsize
	return
}

func headerSize(shardMaxEntries uint64) int64 {
	return 8 + 8*int64(shardMaxEntries)
}

// rowStride is the on-disk width of one row: scan key, value, and a
// trailing checksum of the value.
func (s *Shard) rowStride() int64 {
	return int64(s.scanSize + s.rowValueSize + 4)
}

func newShard(mf *mmapfile.File, headerOff int64, totalKeySize, shardedBitsize, bucketBitsize, rowValueSize int, shardMaxEntries uint64) *Shard {
	scanBitsize, scanSize, numberBuckets := deriveSizes(totalKeySize, shardedBitsize, bucketBitsize)
	return &Shard{
		mf:              mf,
		headerOff:       headerOff,
		totalKeySize:    totalKeySize,
		shardedBitsize:  shardedBitsize,
		bucketBitsize:   bucketBitsize,
		rowValueSize:    rowValueSize,
		shardMaxEntries: shardMaxEntries,
		scanBitsize:     scanBitsize,
		scanSize:        scanSize,
		numberBuckets:   numberBuckets,
		entriesStart:    headerOff + headerSize(shardMaxEntries),
	}
}

// InitializeNew lays out a fresh, empty shard at headerOff inside mf.
func InitializeNew(mf *mmapfile.File, headerOff int64, totalKeySize, shardedBitsize, bucketBitsize, rowValueSize int, shardMaxEntries uint64) (*Shard, error) {
	s := newShard(mf, headerOff, totalKeySize, shardedBitsize, bucketBitsize, rowValueSize, shardMaxEntries)
	if s.entriesStart > mf.Size() {
		if _, err := mf.Resize(s.entriesStart); err != nil {
			return nil, fmt.Errorf("historyshard: resize: %w: %w", err, errkind.IO)
		}
	}
	data := mf.Data()
	serialize.PutUint64(data, int(headerOff), uint64(s.entriesStart))
	for h := uint64(0); h < shardMaxEntries; h++ {
		serialize.PutUint64(data, int(headerOff+8+8*int64(h)), serialize.SentinelOffset64)
	}
	return s, nil
}

// Start opens an existing shard at headerOff inside mf.
func Start(mf *mmapfile.File, headerOff int64, totalKeySize, shardedBitsize, bucketBitsize, rowValueSize int, shardMaxEntries uint64) (*Shard, error) {
	s := newShard(mf, headerOff, totalKeySize, shardedBitsize, bucketBitsize, rowValueSize, shardMaxEntries)
	if s.entriesStart > mf.Size() {
		return nil, fmt.Errorf("historyshard: header extends past file: %w", errkind.Corrupt)
	}
	end := s.entriesEnd()
	if end < uint64(s.entriesStart) || end > uint64(mf.Size()) {
		return nil, fmt.Errorf("historyshard: entries_end %d out of range: %w", end, errkind.Corrupt)
	}
	return s, nil
}

func (s *Shard) entriesEnd() uint64 {
	return serialize.Uint64(s.mf.Data(), int(s.headerOff))
}

func (s *Shard) setEntriesEnd(v uint64) {
	serialize.PutUint64(s.mf.Data(), int(s.headerOff), v)
}

func (s *Shard) slotOffset(height uint64) int64 {
	return s.headerOff + 8 + 8*int64(height)
}

func (s *Shard) entryOffsetForHeight(height uint64) uint64 {
	return serialize.Uint64(s.mf.Data(), int(s.slotOffset(height)))
}

func (s *Shard) setEntryOffsetForHeight(height uint64, off uint64) {
	serialize.PutUint64(s.mf.Data(), int(s.slotOffset(height)), off)
}

// entrySizeAt returns the size in bytes of the entry beginning at off.
func (s *Shard) entrySizeAt(off uint64) (uint64, error) {
	if off+2 > uint64(s.mf.Size()) {
		return 0, fmt.Errorf("historyshard: entry header at %d past file: %w", off, errkind.Corrupt)
	}
	cur := serialize.NewCursor(s.mf.Data()[off:])
	rowCount, err := cur.GetUint16()
	if err != nil {
		return 0, fmt.Errorf("historyshard: %w: %w", err, errkind.Corrupt)
	}
	return 2 + 2*uint64(s.numberBuckets) + uint64(rowCount)*uint64(s.rowStride()), nil
}

// Add buffers one row in memory; no file write occurs until Sync.
func (s *Shard) Add(scanKey, value []byte) error {
	if len(scanKey) != s.scanSize {
		return fmt.Errorf("historyshard: scan key length %d != %d: %w", len(scanKey), s.scanSize, errkind.InvalidArgument)
	}
	if len(value) != s.rowValueSize {
		return fmt.Errorf("historyshard: value length %d != %d: %w", len(value), s.rowValueSize, errkind.InvalidArgument)
	}
	sk := make([]byte, len(scanKey))
	copy(sk, scanKey)
	v := make([]byte, len(value))
	copy(v, value)
	s.buffer = append(s.buffer, row{scanKey: sk, value: v})
	return nil
}

// Sync commits the buffered rows as a new entry at height, per the
// six-step procedure in spec §4.7: sort, size, grow, write rows, write
// the slot, and only then advance entries_end -- the commit point.
func (s *Shard) Sync(height uint64) error {
	if height >= s.shardMaxEntries {
		return fmt.Errorf("historyshard: height %d >= shard_max_entries %d: %w", height, s.shardMaxEntries, errkind.InvalidArgument)
	}

	rows := s.buffer
	sort.Slice(rows, func(i, j int) bool { return bitutil.Less(rows[i].scanKey, rows[j].scanKey) })

	rowCount := len(rows)
	entrySize := uint64(2+2*s.numberBuckets) + uint64(rowCount)*uint64(s.rowStride())

	off := s.entriesEnd()
	need := off + entrySize
	if int64(need) > s.mf.Size() {
		target := mmapfile.GrowTarget(int64(need), s.mf.Size())
		if _, err := s.mf.Resize(target); err != nil {
			return fmt.Errorf("historyshard: resize: %w: %w", err, errkind.IO)
		}
	}

	bucketIndex := make([]uint16, s.numberBuckets)
	for b := range bucketIndex {
		bucketIndex[b] = uint16(rowCount)
	}
	for i := rowCount - 1; i >= 0; i-- {
		b := bitutil.TopBits(rows[i].scanKey, s.bucketBitsize)
		bucketIndex[b] = uint16(i)
	}

	cur := serialize.NewCursor(s.mf.Data()[off:])
	if err := cur.PutUint16(uint16(rowCount)); err != nil {
		return fmt.Errorf("historyshard: %w: %w", err, errkind.Corrupt)
	}
	for _, idx := range bucketIndex {
		if err := cur.PutUint16(idx); err != nil {
			return fmt.Errorf("historyshard: %w: %w", err, errkind.Corrupt)
		}
	}
	for _, r := range rows {
		if err := cur.PutBytes(r.scanKey); err != nil {
			return fmt.Errorf("historyshard: %w: %w", err, errkind.Corrupt)
		}
		if err := cur.PutBytes(r.value); err != nil {
			return fmt.Errorf("historyshard: %w: %w", err, errkind.Corrupt)
		}
		if err := cur.PutUint32(uint32(farm.Hash64(r.value))); err != nil {
			return fmt.Errorf("historyshard: %w: %w", err, errkind.Corrupt)
		}
	}

	s.setEntryOffsetForHeight(height, off)
	s.setEntriesEnd(off + entrySize) // commit point

	s.buffer = nil
	return nil
}

// Unlink truncates entries_end back to just past height-1's entry,
// discarding entries for every height >= height. When nothing was synced
// at height-1, it truncates back to the start of height's own entry
// instead; if neither height has an entry the call is rejected. height
// == 0 has no preceding entry to truncate back to and is rejected.
func (s *Shard) Unlink(height uint64) error {
	if height == 0 {
		return fmt.Errorf("historyshard: unlink(0) has no preceding entry: %w", errkind.InvalidArgument)
	}
	prevOff := s.entryOffsetForHeight(height - 1)
	if prevOff == serialize.SentinelOffset64 {
		off := serialize.SentinelOffset64
		if height < s.shardMaxEntries {
			off = s.entryOffsetForHeight(height)
		}
		if off == serialize.SentinelOffset64 {
			return fmt.Errorf("historyshard: unlink(%d): no entry at height %d or %d: %w", height, height-1, height, errkind.InvalidArgument)
		}
		s.setEntriesEnd(off) // commit point
		return nil
	}
	size, err := s.entrySizeAt(prevOff)
	if err != nil {
		return err
	}
	s.setEntriesEnd(prevOff + size) // commit point
	return nil
}

// Callback is invoked once per matching row's value during Scan. It
// returns nothing: the engine does not interpret callback results, and a
// callback that wants to stop early must start ignoring its own further
// calls.
type Callback func(value []byte)

// Scan walks entries from fromHeight's entry (or, if nothing was synced
// at fromHeight, the entry of the first synced height after it) through
// entries_end, emitting the value of every row whose scan key starts with the
// prefixBits most significant bits of prefixKey, stopping within each
// entry at the first row that doesn't match -- the shard's prefix match
// relies entirely on sort order, never a full scan of non-matching rows.
func (s *Shard) Scan(prefixKey uint32, prefixBits int, fromHeight uint64, cb Callback) error {
	if prefixBits > s.scanBitsize {
		return fmt.Errorf("historyshard: prefix bits %d > scan_bitsize %d: %w", prefixBits, s.scanBitsize, errkind.InvalidArgument)
	}

	off := serialize.SentinelOffset64
	for h := fromHeight; h < s.shardMaxEntries && off == serialize.SentinelOffset64; h++ {
		off = s.entryOffsetForHeight(h)
	}
	end := s.entriesEnd()

	for off < end {
		size, err := s.entrySizeAt(off)
		if err != nil {
			return err
		}
		if off+size > end {
			return fmt.Errorf("historyshard: entry at %d overflows entries_end %d: %w", off, end, errkind.Corrupt)
		}

		data := s.mf.Data()
		cur := serialize.NewCursor(data[off:])
		rowCountU16, err := cur.GetUint16()
		if err != nil {
			return fmt.Errorf("historyshard: %w: %w", err, errkind.Corrupt)
		}
		rowCount := int(rowCountU16)
		bucketIndexOff := int64(off) + int64(cur.Offset())
		rowsOff := bucketIndexOff + 2*int64(s.numberBuckets)

		start := s.scanStartBucket(data, bucketIndexOff, prefixKey, prefixBits, rowCount)
		for i := start; i < rowCount; i++ {
			base := rowsOff + int64(i)*s.rowStride()
			scanKey := data[base : base+int64(s.scanSize)]
			if !bitutil.HasPrefix(scanKey, prefixKey, prefixBits) {
				break
			}
			valueEnd := base + int64(s.scanSize) + int64(s.rowValueSize)
			value := data[base+int64(s.scanSize) : valueEnd]
			checksum := serialize.Uint32(data, int(valueEnd))
			if uint32(farm.Hash64(value)) != checksum {
				return fmt.Errorf("historyshard: checksum mismatch at offset %d: %w", base, errkind.Corrupt)
			}
			cb(value)
		}

		off += size
	}
	return nil
}

// scanStartBucket finds the earliest row index any bucket whose top
// bucket_bitsize bits are consistent with prefixKey/prefixBits could
// start at. When prefixBits >= bucket_bitsize this is exactly one
// bucket's recorded start; when prefixBits is shorter, several buckets
// share the prefix and the true start is the smallest of their recorded
// starts (an empty bucket's slot holds row_count, which can never be the
// minimum unless every candidate bucket is empty).
func (s *Shard) scanStartBucket(data []byte, bucketIndexOff int64, prefixKey uint32, prefixBits int, rowCount int) int {
	bLo := 0
	bHi := s.numberBuckets - 1
	if prefixBits > 0 {
		if prefixBits >= s.bucketBitsize {
			b := int(prefixKey >> uint(prefixBits-s.bucketBitsize))
			bLo, bHi = b, b
		} else {
			shift := s.bucketBitsize - prefixBits
			base := int(prefixKey) << uint(shift)
			bLo = base
			bHi = base | ((1 << uint(shift)) - 1)
		}
	}

	start := rowCount
	for b := bLo; b <= bHi; b++ {
		v := int(serialize.Uint16(data, int(bucketIndexOff)+b*2))
		if v < start {
			start = v
		}
	}
	return start
}
