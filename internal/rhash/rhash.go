// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package rhash implements the record-based chained hash table (spec
// §4.4, record variant): a bucketarray.Array of 32-bit bucket heads
// sitting in front of a recordfile.Allocator of fixed
// [key:K][next:4][value:V] chain items. Both live in the same backing
// file, one right after the other, matching the filesystem layout table
// in spec §6 (e.g. "blocks_lookup" holds exactly this).
//
// The hashing rule (spec §4.4) is deliberately trivial: keys are already
// cryptographic hashes, so bucket selection is the identity over the
// first 4 key bytes, not a general-purpose hash function. This table
// supports store/unlink, which a minimal-perfect-hash construction
// could not since those are immutable by construction.
package rhash

import (
	"bytes"
	"fmt"

	"github.com/go-chainstore/chainstore/internal/bucketarray"
	"github.com/go-chainstore/chainstore/internal/errkind"
	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/recordfile"
	"github.com/go-chainstore/chainstore/internal/serialize"
)

// Table is a chained hash table: key -> value, both fixed-width, built
// on the record allocator.
type Table struct {
	buckets   *bucketarray.Array
	items     *recordfile.Allocator
	keySize   int
	valueSize int
}

func itemSize(keySize, valueSize int) int64 {
	return int64(keySize) + 4 + int64(valueSize)
}

// requiredSize returns the number of bytes the bucket array plus an
// empty item allocator header need, starting at off.
func requiredSize(off int64, bucketCount uint32) int64 {
	return off + bucketarray.Size(bucketCount, bucketarray.Width32) + 4
}

// InitializeNew lays out a fresh, empty table at off inside mf, growing
// mf if it isn't big enough yet.
func InitializeNew(mf *mmapfile.File, off int64, bucketCount uint32, keySize, valueSize int) (*Table, error) {
	need := requiredSize(off, bucketCount)
	if need > mf.Size() {
		if _, err := mf.Resize(need); err != nil {
			return nil, fmt.Errorf("rhash: resize: %w: %w", err, errkind.IO)
		}
	}

	buckets, err := bucketarray.InitializeNew(mf, off, bucketCount, bucketarray.Width32)
	if err != nil {
		return nil, fmt.Errorf("rhash: InitializeNew buckets: %w", err)
	}
	itemsOff := off + bucketarray.Size(bucketCount, bucketarray.Width32)
	items, err := recordfile.InitializeNew(mf, itemsOff, itemSize(keySize, valueSize))
	if err != nil {
		return nil, fmt.Errorf("rhash: InitializeNew items: %w", err)
	}

	return &Table{buckets: buckets, items: items, keySize: keySize, valueSize: valueSize}, nil
}

// Start opens an existing table at off inside mf.
func Start(mf *mmapfile.File, off int64, keySize, valueSize int) (*Table, error) {
	buckets, err := bucketarray.Start(mf, off, bucketarray.Width32)
	if err != nil {
		return nil, fmt.Errorf("rhash: Start buckets: %w", err)
	}
	itemsOff := off + bucketarray.Size(buckets.Count(), bucketarray.Width32)
	items, err := recordfile.Start(mf, itemsOff, itemSize(keySize, valueSize))
	if err != nil {
		return nil, fmt.Errorf("rhash: Start items: %w", err)
	}
	return &Table{buckets: buckets, items: items, keySize: keySize, valueSize: valueSize}, nil
}

func (t *Table) bucketIndex(key []byte) (uint32, error) {
	if len(key) != t.keySize {
		return 0, fmt.Errorf("rhash: key length %d != %d: %w", len(key), t.keySize, errkind.InvalidArgument)
	}
	if len(key) < 4 {
		return 0, fmt.Errorf("rhash: key shorter than 4 bytes: %w", errkind.InvalidArgument)
	}
	h := serialize.Uint32(key, 0)
	return h % t.buckets.Count(), nil
}

func (t *Table) itemKey(rec []byte) []byte   { return rec[:t.keySize] }
func (t *Table) itemNext(rec []byte) uint32  { return serialize.Uint32(rec, t.keySize) }
func (t *Table) setItemNext(rec []byte, v uint32) {
	serialize.PutUint32(rec, t.keySize, v)
}
func (t *Table) itemValue(rec []byte) []byte { return rec[t.keySize+4:] }

// Store prepends a new chain item for key/value. Duplicate keys are
// permitted; the most recently stored value shadows earlier ones on
// lookup (spec §4.4). The bucket head overwrite is the single commit
// point: by the time it happens, the new item's next and value fields
// are already fully written.
func (t *Table) Store(key, value []byte) error {
	bucket, err := t.bucketIndex(key)
	if err != nil {
		return err
	}
	if len(value) != t.valueSize {
		return fmt.Errorf("rhash: value length %d != %d: %w", len(value), t.valueSize, errkind.InvalidArgument)
	}

	head, err := t.buckets.Get(bucket)
	if err != nil {
		return err
	}

	idx, err := t.items.Allocate()
	if err != nil {
		return err
	}
	rec, err := t.items.Get(idx)
	if err != nil {
		return err
	}
	copy(t.itemKey(rec), key)
	t.setItemNext(rec, uint32(head))
	copy(t.itemValue(rec), value)

	return t.buckets.Set(bucket, uint64(idx))
}

// Get walks the bucket chain for key and returns the most recently
// stored (not yet unlinked) value, or ok == false if key was never
// inserted (or every insertion of it has since been unlinked).
func (t *Table) Get(key []byte) (value []byte, ok bool, err error) {
	bucket, err := t.bucketIndex(key)
	if err != nil {
		return nil, false, err
	}
	head, err := t.buckets.Get(bucket)
	if err != nil {
		return nil, false, err
	}
	cur := uint32(head)
	for cur != serialize.SentinelIndex32 {
		if cur >= t.items.Count() {
			return nil, false, fmt.Errorf("rhash: bucket chain references index %d past count %d: %w", cur, t.items.Count(), errkind.Corrupt)
		}
		rec, err := t.items.Get(cur)
		if err != nil {
			return nil, false, err
		}
		if bytes.Equal(t.itemKey(rec), key) {
			return t.itemValue(rec), true, nil
		}
		cur = t.itemNext(rec)
	}
	return nil, false, nil
}

// Unlink removes the first chain item matching key, splicing around it.
// It reports whether an item was removed. Space is not reclaimed.
func (t *Table) Unlink(key []byte) (bool, error) {
	bucket, err := t.bucketIndex(key)
	if err != nil {
		return false, err
	}
	head, err := t.buckets.Get(bucket)
	if err != nil {
		return false, err
	}

	cur := uint32(head)
	var prevRec []byte
	for cur != serialize.SentinelIndex32 {
		rec, err := t.items.Get(cur)
		if err != nil {
			return false, err
		}
		if bytes.Equal(t.itemKey(rec), key) {
			next := t.itemNext(rec)
			if prevRec == nil {
				return true, t.buckets.Set(bucket, uint64(next))
			}
			t.setItemNext(prevRec, next)
			return true, nil
		}
		prevRec = rec
		cur = t.itemNext(rec)
	}
	return false, nil
}

// Sync persists the item allocator's record count to its header. The
// bucket array has no separate header to sync: every Store/Unlink already
// wrote its commit-point store directly into the shared mapping.
func (t *Table) Sync() error {
	return t.items.Sync()
}

// ItemCount returns the number of chain items ever allocated (including
// any later unlinked).
func (t *Table) ItemCount() uint32 {
	return t.items.Count()
}
