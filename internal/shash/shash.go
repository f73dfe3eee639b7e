// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package shash implements the slab-based chained hash table (spec
// §4.4, slab variant): a bucketarray.Array of 64-bit bucket heads in
// front of a slabfile.Allocator of
// [key:K][next:8][value_len:4][checksum:4][value:value_len] chain
// items, value_len given per insertion. It is the variable-value twin
// of internal/rhash, used where the value (a serialized transaction,
// say) doesn't have a single fixed width.
//
// The value_len/checksum pair makes each record a length-prefixed,
// checksummed variable-size block; storing it here means a lookup never
// needs to be told the value size in advance, and corruption shows up
// as errkind.Corrupt instead of silently returning garbage or a short
// read.
package shash

import (
	"bytes"
	"fmt"

	"github.com/dgryski/go-farm"

	"github.com/go-chainstore/chainstore/internal/bucketarray"
	"github.com/go-chainstore/chainstore/internal/errkind"
	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/serialize"
	"github.com/go-chainstore/chainstore/internal/slabfile"
)

// itemHeaderSize is the number of bytes following the key in every
// item: 8-byte next pointer, 4-byte value length, 4-byte checksum.
const itemHeaderSize = 8 + 4 + 4

// Table is a chained hash table: fixed-width key -> variable-width
// value, built on the slab allocator.
type Table struct {
	buckets *bucketarray.Array
	items   *slabfile.Allocator
	keySize int
}

func requiredSize(off int64, bucketCount uint32) int64 {
	return off + bucketarray.Size(bucketCount, bucketarray.Width64) + 8
}

// InitializeNew lays out a fresh, empty table at off inside mf.
func InitializeNew(mf *mmapfile.File, off int64, bucketCount uint32, keySize int) (*Table, error) {
	need := requiredSize(off, bucketCount)
	if need > mf.Size() {
		if _, err := mf.Resize(need); err != nil {
			return nil, fmt.Errorf("shash: resize: %w: %w", err, errkind.IO)
		}
	}

	buckets, err := bucketarray.InitializeNew(mf, off, bucketCount, bucketarray.Width64)
	if err != nil {
		return nil, fmt.Errorf("shash: InitializeNew buckets: %w", err)
	}
	itemsOff := off + bucketarray.Size(bucketCount, bucketarray.Width64)
	items, err := slabfile.InitializeNew(mf, itemsOff)
	if err != nil {
		return nil, fmt.Errorf("shash: InitializeNew items: %w", err)
	}
	return &Table{buckets: buckets, items: items, keySize: keySize}, nil
}

// Start opens an existing table at off inside mf.
func Start(mf *mmapfile.File, off int64, keySize int) (*Table, error) {
	buckets, err := bucketarray.Start(mf, off, bucketarray.Width64)
	if err != nil {
		return nil, fmt.Errorf("shash: Start buckets: %w", err)
	}
	itemsOff := off + bucketarray.Size(buckets.Count(), bucketarray.Width64)
	items, err := slabfile.Start(mf, itemsOff)
	if err != nil {
		return nil, fmt.Errorf("shash: Start items: %w", err)
	}
	return &Table{buckets: buckets, items: items, keySize: keySize}, nil
}

func (t *Table) bucketIndex(key []byte) (uint32, error) {
	if len(key) != t.keySize {
		return 0, fmt.Errorf("shash: key length %d != %d: %w", len(key), t.keySize, errkind.InvalidArgument)
	}
	if len(key) < 4 {
		return 0, fmt.Errorf("shash: key shorter than 4 bytes: %w", errkind.InvalidArgument)
	}
	h := serialize.Uint32(key, 0)
	return h % t.buckets.Count(), nil
}

type itemHeader struct {
	key      []byte
	next     uint64
	valueLen uint32
	checksum uint32
}

func (t *Table) readHeader(off uint64) (itemHeader, error) {
	hdr, err := t.items.Bytes(off, uint64(t.keySize+itemHeaderSize))
	if err != nil {
		return itemHeader{}, fmt.Errorf("shash: %w: %w", err, errkind.Corrupt)
	}
	return itemHeader{
		key:      hdr[:t.keySize],
		next:     serialize.Uint64(hdr, t.keySize),
		valueLen: serialize.Uint32(hdr, t.keySize+8),
		checksum: serialize.Uint32(hdr, t.keySize+12),
	}, nil
}

func (t *Table) slabSize(valueLen int) uint64 {
	return uint64(t.keySize + itemHeaderSize + valueLen)
}

// Store prepends a new chain item for key/value, of arbitrary value
// length. As with rhash, the value and next-pointer fields are fully
// written before the bucket head overwrite -- the single commit point.
func (t *Table) Store(key, value []byte) (offset uint64, err error) {
	bucket, err := t.bucketIndex(key)
	if err != nil {
		return 0, err
	}

	head, err := t.buckets.Get(bucket)
	if err != nil {
		return 0, err
	}

	slabOff, err := t.items.Allocate(t.slabSize(len(value)))
	if err != nil {
		return 0, err
	}
	item, err := t.items.Bytes(slabOff, t.slabSize(len(value)))
	if err != nil {
		return 0, err
	}
	copy(item[:t.keySize], key)
	serialize.PutUint64(item, t.keySize, head)
	serialize.PutUint32(item, t.keySize+8, uint32(len(value)))
	serialize.PutUint32(item, t.keySize+12, uint32(farm.Hash64(value)))
	copy(item[t.keySize+itemHeaderSize:], value)

	if err := t.buckets.Set(bucket, slabOff); err != nil {
		return 0, err
	}
	return slabOff, nil
}

// Get walks the bucket chain for key and returns the most recently
// stored (not yet unlinked) value, its own item offset (for a later
// Unlink), or ok == false if key was never inserted.
func (t *Table) Get(key []byte) (value []byte, offsetOfItem uint64, ok bool, err error) {
	bucket, err := t.bucketIndex(key)
	if err != nil {
		return nil, 0, false, err
	}
	head, err := t.buckets.Get(bucket)
	if err != nil {
		return nil, 0, false, err
	}

	cur := head
	for cur != serialize.SentinelOffset64 {
		hdr, err := t.readHeader(cur)
		if err != nil {
			return nil, 0, false, err
		}
		if bytes.Equal(hdr.key, key) {
			value, err := t.items.Bytes(cur+uint64(t.keySize+itemHeaderSize), uint64(hdr.valueLen))
			if err != nil {
				return nil, 0, false, fmt.Errorf("shash: %w: %w", err, errkind.Corrupt)
			}
			if uint32(farm.Hash64(value)) != hdr.checksum {
				return nil, 0, false, fmt.Errorf("shash: checksum mismatch at offset %d: %w", cur, errkind.Corrupt)
			}
			return value, cur, true, nil
		}
		cur = hdr.next
	}
	return nil, 0, false, nil
}

// Unlink removes the chain item at exactly offset target (the offset
// returned by a prior Get/Store), splicing around it. Items have
// variable length, so unlink is offset-addressed rather than purely
// key-addressed.
func (t *Table) Unlink(key []byte, target uint64) (bool, error) {
	bucket, err := t.bucketIndex(key)
	if err != nil {
		return false, err
	}
	head, err := t.buckets.Get(bucket)
	if err != nil {
		return false, err
	}

	cur := head
	var prevOff uint64
	havePrev := false
	for cur != serialize.SentinelOffset64 {
		hdr, err := t.readHeader(cur)
		if err != nil {
			return false, err
		}
		if cur == target && bytes.Equal(hdr.key, key) {
			if !havePrev {
				return true, t.buckets.Set(bucket, hdr.next)
			}
			prevHdr, err := t.items.Bytes(prevOff, uint64(t.keySize+itemHeaderSize))
			if err != nil {
				return false, err
			}
			serialize.PutUint64(prevHdr, t.keySize, hdr.next)
			return true, nil
		}
		prevOff = cur
		havePrev = true
		cur = hdr.next
	}
	return false, nil
}

// Sync persists the slab allocator's end_offset to its header.
func (t *Table) Sync() error {
	return t.items.Sync()
}
