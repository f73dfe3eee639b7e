// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bucketarray implements the fixed-count array of bucket heads
// that sits at the front of every chained hash table file (spec §3,
// "Bucket Array"): a 32-bit bucket_count header followed by bucket_count
// fixed-width entries, each either a 32-bit record index (record hash
// table) or a 64-bit slab offset (slab hash table).
//
// Unlike a flat, headerless array grown by its caller, bucketarray.Array
// owns its own bucket_count header and never resizes once created --
// bucket_count is fixed for the life of the file.
package bucketarray

import (
	"fmt"

	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/serialize"
)

// Width is the byte width of a single bucket-head entry.
type Width int

const (
	Width32 Width = 4
	Width64 Width = 8
)

// Array is a fixed-count array of bucket heads stored at headerOffset
// inside an mmapfile.File shared with other structures (e.g. the chain
// items that follow it in the same file).
type Array struct {
	mf          *mmapfile.File
	headerOff   int64
	width       Width
	bucketCount uint32
}

// Size returns the total byte size (header + entries) an Array with the
// given bucket count and width occupies, for callers sizing the backing
// file before calling InitializeNew.
func Size(bucketCount uint32, width Width) int64 {
	return 4 + int64(bucketCount)*int64(width)
}

// InitializeNew writes the bucket_count header and sets every bucket
// head to the empty sentinel for width (0xFFFFFFFF for 32-bit entries,
// 0xFFFFFFFFFFFFFFFF for 64-bit entries). The backing file must already
// be large enough to hold Size(bucketCount, width) bytes at
// headerOffset.
func InitializeNew(mf *mmapfile.File, headerOffset int64, bucketCount uint32, width Width) (*Array, error) {
	a := &Array{mf: mf, headerOff: headerOffset, width: width, bucketCount: bucketCount}
	data := mf.Data()
	need := headerOffset + Size(bucketCount, width)
	if int64(len(data)) < need {
		return nil, fmt.Errorf("bucketarray: backing file too small: have %d, need %d", len(data), need)
	}
	serialize.PutUint32(data, int(headerOffset), bucketCount)
	for i := uint32(0); i < bucketCount; i++ {
		if err := a.Set(i, a.emptySentinel()); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Array) emptySentinel() uint64 {
	if a.width == Width32 {
		return uint64(serialize.SentinelIndex32)
	}
	return serialize.SentinelOffset64
}

// EmptySentinel returns the empty-bucket sentinel value for this array's
// width.
func (a *Array) EmptySentinel() uint64 {
	return a.emptySentinel()
}

// Start opens an existing Array, reading and validating its header.
func Start(mf *mmapfile.File, headerOffset int64, width Width) (*Array, error) {
	data := mf.Data()
	if headerOffset+4 > int64(len(data)) {
		return nil, fmt.Errorf("bucketarray: header at %d past end of file (len %d)", headerOffset, len(data))
	}
	bucketCount := serialize.Uint32(data, int(headerOffset))
	need := headerOffset + Size(bucketCount, width)
	if need > int64(len(data)) {
		return nil, fmt.Errorf("bucketarray: bucket_count %d at offset %d needs %d bytes, file has %d", bucketCount, headerOffset, need, len(data))
	}
	return &Array{mf: mf, headerOff: headerOffset, width: width, bucketCount: bucketCount}, nil
}

// Count returns the fixed bucket count.
func (a *Array) Count() uint32 {
	return a.bucketCount
}

func (a *Array) entryOffset(i uint32) int64 {
	return a.headerOff + 4 + int64(i)*int64(a.width)
}

// Get returns the bucket head stored at bucket index i.
func (a *Array) Get(i uint32) (uint64, error) {
	if i >= a.bucketCount {
		return 0, fmt.Errorf("bucketarray: index %d out of range (count %d)", i, a.bucketCount)
	}
	off := int(a.entryOffset(i))
	data := a.mf.Data()
	if a.width == Width32 {
		return uint64(serialize.Uint32(data, off)), nil
	}
	return serialize.Uint64(data, off), nil
}

// Set overwrites the bucket head stored at bucket index i. This is the
// commit-point store for a chained hash table's store/unlink: callers
// must ensure the item being pointed to is fully written before calling
// Set (spec §4.4's ordering requirement).
func (a *Array) Set(i uint32, v uint64) error {
	if i >= a.bucketCount {
		return fmt.Errorf("bucketarray: index %d out of range (count %d)", i, a.bucketCount)
	}
	off := int(a.entryOffset(i))
	data := a.mf.Data()
	if a.width == Width32 {
		serialize.PutUint32(data, off, uint32(v))
	} else {
		serialize.PutUint64(data, off, v)
	}
	return nil
}
