// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package recordfile implements the fixed-size record allocator (spec
// §4.2): a 32-bit record_count header at a caller-supplied offset,
// followed by an append-only body of record_count x record_size bytes.
// It addresses fixed-width records by index rather than by the
// variable-length, offset-addressed writes a plain append log would
// use.
package recordfile

import (
	"fmt"

	"github.com/go-chainstore/chainstore/internal/errkind"
	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/serialize"
)

// Allocator hands out fixed-size records, by 32-bit index, over an
// mmapfile.File.
type Allocator struct {
	mf         *mmapfile.File
	headerOff  int64
	recordSize int64

	// count is the writer's authoritative in-memory count. It is ahead
	// of the on-disk header between Allocate calls and the next Sync --
	// per spec §5, the writer sees its own allocations immediately,
	// other readers only after Sync.
	count uint32
}

// InitializeNew writes an empty (record_count == 0) header at
// headerOffset, first growing the backing file if it is too small to
// hold the header.
func InitializeNew(mf *mmapfile.File, headerOffset int64, recordSize int64) (*Allocator, error) {
	if need := headerOffset + 4; need > mf.Size() {
		if _, err := mf.Resize(need); err != nil {
			return nil, fmt.Errorf("recordfile: resize: %w: %w", err, errkind.IO)
		}
	}
	data := mf.Data()
	serialize.PutUint32(data, int(headerOffset), 0)
	return &Allocator{mf: mf, headerOff: headerOffset, recordSize: recordSize}, nil
}

// Start opens an existing Allocator, reading and caching record_count.
func Start(mf *mmapfile.File, headerOffset int64, recordSize int64) (*Allocator, error) {
	data := mf.Data()
	if headerOffset+4 > int64(len(data)) {
		return nil, fmt.Errorf("recordfile: header at %d past end of file (len %d): %w", headerOffset, len(data), errkind.Corrupt)
	}
	count := serialize.Uint32(data, int(headerOffset))
	end := headerOffset + 4 + int64(count)*recordSize
	if end > int64(len(data)) {
		return nil, fmt.Errorf("recordfile: record_count %d at offset %d needs %d bytes, file has %d: %w", count, headerOffset, end, len(data), errkind.Corrupt)
	}
	return &Allocator{mf: mf, headerOff: headerOffset, recordSize: recordSize, count: count}, nil
}

// Count returns the allocator's current (in-memory) record count.
func (a *Allocator) Count() uint32 {
	return a.count
}

func (a *Allocator) recordOffset(index uint32) int64 {
	return a.headerOff + 4 + int64(index)*a.recordSize
}

// Allocate reserves one more record, growing the backing file if
// necessary (the 3/2 growth policy in spec §4.2), and returns its index.
// The new record's bytes are zeroed.
func (a *Allocator) Allocate() (uint32, error) {
	index := a.count
	needed := a.recordOffset(index) + a.recordSize
	if needed > a.mf.Size() {
		target := mmapfile.GrowTarget(needed, a.mf.Size())
		if _, err := a.mf.Resize(target); err != nil {
			return 0, fmt.Errorf("recordfile: resize: %w: %w", err, errkind.IO)
		}
	}
	rec := a.mf.Data()[a.recordOffset(index) : a.recordOffset(index)+a.recordSize]
	for i := range rec {
		rec[i] = 0
	}
	a.count++
	return index, nil
}

// Get returns the bytes of the record at index, bounds-checked against
// the allocator's current count. The returned slice aliases the mapped
// file and is invalidated by any subsequent Allocate that triggers a
// remap (spec §9's pointer-into-mapping hazard) -- callers that need a
// value to survive across an Allocate must copy it first.
func (a *Allocator) Get(index uint32) ([]byte, error) {
	if index >= a.count {
		return nil, fmt.Errorf("recordfile: index %d out of range (count %d): %w", index, a.count, errkind.InvalidArgument)
	}
	off := a.recordOffset(index)
	return a.mf.Data()[off : off+a.recordSize], nil
}

// Sync persists the cached record_count back to the header. Readers on
// other threads observe newly-allocated records only after Sync.
func (a *Allocator) Sync() error {
	serialize.PutUint32(a.mf.Data(), int(a.headerOff), a.count)
	return nil
}

// Unlink truncates the allocator back to n records, discarding every
// record at index >= n. It is used by table-level rollback (pop); the
// record allocator itself never reclaims the underlying file space.
func (a *Allocator) Unlink(n uint32) error {
	if n > a.count {
		return fmt.Errorf("recordfile: cannot unlink to %d records, only have %d: %w", n, a.count, errkind.InvalidArgument)
	}
	a.count = n
	return nil
}
