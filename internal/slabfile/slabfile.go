// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package slabfile implements the variable-size slab allocator (spec
// §4.3): a 64-bit end_offset header at a caller-supplied offset,
// followed by an append-only body of variable-size byte slabs starting
// at header_offset+8. Returned offsets are absolute file offsets.
//
// It tracks an append offset and hands back the offset of each write,
// as a reusable allocator rather than a bespoke KV log -- the chained
// slab hash table (internal/shash) lays its own key/next/value record
// format on top of the bytes this package hands out.
package slabfile

import (
	"fmt"

	"github.com/go-chainstore/chainstore/internal/errkind"
	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/serialize"
)

// Allocator hands out variable-size byte slabs, by absolute file offset,
// over an mmapfile.File.
type Allocator struct {
	mf        *mmapfile.File
	headerOff int64

	// endOffset is the writer's authoritative in-memory append offset,
	// ahead of the on-disk header between Allocate calls and the next
	// Sync.
	endOffset uint64
}

// InitializeNew writes an empty (end_offset == headerOffset+8) header at
// headerOffset, first growing the backing file if it is too small to
// hold the header.
func InitializeNew(mf *mmapfile.File, headerOffset int64) (*Allocator, error) {
	if need := headerOffset + 8; need > mf.Size() {
		if _, err := mf.Resize(need); err != nil {
			return nil, fmt.Errorf("slabfile: resize: %w: %w", err, errkind.IO)
		}
	}
	data := mf.Data()
	initial := uint64(headerOffset + 8)
	serialize.PutUint64(data, int(headerOffset), initial)
	return &Allocator{mf: mf, headerOff: headerOffset, endOffset: initial}, nil
}

// Start opens an existing Allocator, reading and caching end_offset.
func Start(mf *mmapfile.File, headerOffset int64) (*Allocator, error) {
	data := mf.Data()
	if headerOffset+8 > int64(len(data)) {
		return nil, fmt.Errorf("slabfile: header at %d past end of file (len %d): %w", headerOffset, len(data), errkind.Corrupt)
	}
	end := serialize.Uint64(data, int(headerOffset))
	if end < uint64(headerOffset+8) || end > uint64(len(data)) {
		return nil, fmt.Errorf("slabfile: end_offset %d inconsistent with file length %d: %w", end, len(data), errkind.Corrupt)
	}
	return &Allocator{mf: mf, headerOff: headerOffset, endOffset: end}, nil
}

// EndOffset returns the allocator's current (in-memory) end offset.
func (a *Allocator) EndOffset() uint64 {
	return a.endOffset
}

// Allocate reserves size bytes at the current end offset, growing the
// backing file if necessary, and returns the offset at which the slab
// begins (the previous end_offset). Zero-sized allocations are rejected.
func (a *Allocator) Allocate(size uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("slabfile: zero-sized allocation: %w", errkind.InvalidArgument)
	}
	off := a.endOffset
	needed := int64(off + size)
	if needed > a.mf.Size() {
		target := mmapfile.GrowTarget(needed, a.mf.Size())
		if _, err := a.mf.Resize(target); err != nil {
			return 0, fmt.Errorf("slabfile: resize: %w: %w", err, errkind.IO)
		}
	}
	slab := a.mf.Data()[off : off+size]
	for i := range slab {
		slab[i] = 0
	}
	a.endOffset += size
	return off, nil
}

// Bytes returns the raw bytes of the n-byte slab starting at off,
// bounds-checked against the allocator's current end offset. As with
// recordfile.Get, the returned slice is invalidated by a subsequent
// Allocate that triggers a remap.
func (a *Allocator) Bytes(off, n uint64) ([]byte, error) {
	if off+n > a.endOffset {
		return nil, fmt.Errorf("slabfile: [%d, %d) beyond end_offset %d: %w", off, off+n, a.endOffset, errkind.InvalidArgument)
	}
	return a.mf.Data()[off : off+n], nil
}

// Sync persists the cached end_offset back to the header. This is the
// single commit-point store for this allocator.
func (a *Allocator) Sync() error {
	serialize.PutUint64(a.mf.Data(), int(a.headerOff), a.endOffset)
	return nil
}

// Unlink truncates the allocator back to end offset off, discarding
// every slab beyond it. The underlying file space is not reclaimed.
func (a *Allocator) Unlink(off uint64) error {
	if off < uint64(a.headerOff+8) || off > a.endOffset {
		return fmt.Errorf("slabfile: cannot unlink to offset %d (header %d, end %d): %w", off, a.headerOff+8, a.endOffset, errkind.InvalidArgument)
	}
	a.endOffset = off
	return nil
}
