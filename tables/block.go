// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package tables holds the concrete domain tables (spec §4.8) built on
// top of the generic allocators and hash tables in internal/: blocks,
// transactions, spends, history, and stealth. Each table composes two or
// three of the mechanism packages the way spec §6's filesystem layout
// names a small, fixed set of files per table.
package tables

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/go-chainstore/chainstore/internal/errkind"
	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/recordfile"
	"github.com/go-chainstore/chainstore/internal/rhash"
	"github.com/go-chainstore/chainstore/internal/serialize"
	"github.com/go-chainstore/chainstore/internal/slabfile"
)

// headerSize is the fixed size of a serialized Bitcoin block header.
const headerSize = 80

// NullHeight is the sentinel returned by BlockTable.LastHeight when the
// table is empty (spec §8 scenario E: "last_height() returns the
// null-height sentinel").
const NullHeight = serialize.SentinelIndex32

// Block is one stored block: its 80-byte header, opaque to this layer,
// and the hashes of every transaction it contains, in block order.
type Block struct {
	Header   [headerSize]byte
	TxHashes []chainhash.Hash
}

func (b *Block) encodedSize() int64 {
	return headerSize + 4 + int64(len(b.TxHashes))*chainhash.HashSize
}

func (b *Block) encode(dst []byte) {
	copy(dst[:headerSize], b.Header[:])
	serialize.PutUint32(dst, headerSize, uint32(len(b.TxHashes)))
	off := headerSize + 4
	for _, h := range b.TxHashes {
		copy(dst[off:off+chainhash.HashSize], h[:])
		off += chainhash.HashSize
	}
}

func decodeBlock(src []byte) (*Block, error) {
	if len(src) < headerSize+4 {
		return nil, fmt.Errorf("tables: block body too short (%d bytes): %w", len(src), errkind.Corrupt)
	}
	b := &Block{}
	copy(b.Header[:], src[:headerSize])
	txCount := serialize.Uint32(src, headerSize)
	off := headerSize + 4
	want := off + int(txCount)*chainhash.HashSize
	if want > len(src) {
		return nil, fmt.Errorf("tables: block body truncated (want %d, have %d): %w", want, len(src), errkind.Corrupt)
	}
	b.TxHashes = make([]chainhash.Hash, txCount)
	for i := range b.TxHashes {
		copy(b.TxHashes[i][:], src[off:off+chainhash.HashSize])
		off += chainhash.HashSize
	}
	return b, nil
}

// BlockTable is the hash→height lookup plus height→body storage of spec
// §4.8's block table. blocks_lookup maps hash.Bytes() to a 4-byte
// height; the height directory and the body slab are kept in separate
// files (rather than spec §6's single "blocks_rows") because the two
// grow independently and, like internal/multimap's index and list, can't
// safely share one region of one mapped file.
type BlockTable struct {
	lookup *rhash.Table           // hash(32) -> height(4)
	dir    *recordfile.Allocator  // height -> 8-byte offset into bodies
	bodies *slabfile.Allocator
}

// InitializeNew lays out a fresh, empty block table across its three
// backing files.
func InitializeNew(lookupFile *mmapfile.File, bucketCount uint32, dirFile, bodiesFile *mmapfile.File) (*BlockTable, error) {
	lookup, err := rhash.InitializeNew(lookupFile, 0, bucketCount, chainhash.HashSize, 4)
	if err != nil {
		return nil, fmt.Errorf("tables: block lookup: %w", err)
	}
	dir, err := recordfile.InitializeNew(dirFile, 0, 8)
	if err != nil {
		return nil, fmt.Errorf("tables: block directory: %w", err)
	}
	bodies, err := slabfile.InitializeNew(bodiesFile, 0)
	if err != nil {
		return nil, fmt.Errorf("tables: block bodies: %w", err)
	}
	return &BlockTable{lookup: lookup, dir: dir, bodies: bodies}, nil
}

// Start opens an existing block table.
func Start(lookupFile, dirFile, bodiesFile *mmapfile.File) (*BlockTable, error) {
	lookup, err := rhash.Start(lookupFile, 0, chainhash.HashSize, 4)
	if err != nil {
		return nil, fmt.Errorf("tables: block lookup: %w", err)
	}
	dir, err := recordfile.Start(dirFile, 0, 8)
	if err != nil {
		return nil, fmt.Errorf("tables: block directory: %w", err)
	}
	bodies, err := slabfile.Start(bodiesFile, 0)
	if err != nil {
		return nil, fmt.Errorf("tables: block bodies: %w", err)
	}
	return &BlockTable{lookup: lookup, dir: dir, bodies: bodies}, nil
}

func blockHash(b *Block) chainhash.Hash {
	return chainhash.DoubleHashH(b.Header[:])
}

// Store appends block as the new tip, at height == LastHeight()+1 (or 0
// for the first block), and returns that height.
func (t *BlockTable) Store(b *Block) (uint32, error) {
	height := t.dir.Count()

	body := make([]byte, b.encodedSize())
	b.encode(body)

	slabOff, err := t.bodies.Allocate(uint64(len(body)))
	if err != nil {
		return 0, err
	}
	dst, err := t.bodies.Bytes(slabOff, uint64(len(body)))
	if err != nil {
		return 0, err
	}
	copy(dst, body)

	dirIdx, err := t.dir.Allocate()
	if err != nil {
		return 0, err
	}
	if dirIdx != height {
		return 0, fmt.Errorf("tables: block directory index %d != expected height %d: %w", dirIdx, height, errkind.Corrupt)
	}
	rec, err := t.dir.Get(dirIdx)
	if err != nil {
		return 0, err
	}
	serialize.PutUint64(rec, 0, slabOff)

	hash := blockHash(b)
	heightBytes := make([]byte, 4)
	serialize.PutUint32(heightBytes, 0, height)
	if err := t.lookup.Store(hash[:], heightBytes); err != nil {
		return 0, err
	}
	return height, nil
}

// Get returns the block stored at height.
func (t *BlockTable) Get(height uint32) (*Block, error) {
	if height >= t.dir.Count() {
		return nil, fmt.Errorf("tables: height %d out of range: %w", height, errkind.NotFound)
	}
	rec, err := t.dir.Get(height)
	if err != nil {
		return nil, err
	}
	slabOff := serialize.Uint64(rec, 0)
	hdr, err := t.bodies.Bytes(slabOff, headerSize+4)
	if err != nil {
		return nil, err
	}
	txCount := serialize.Uint32(hdr, headerSize)
	body, err := t.bodies.Bytes(slabOff, uint64(headerSize+4)+uint64(txCount)*chainhash.HashSize)
	if err != nil {
		return nil, err
	}
	return decodeBlock(body)
}

// GetByHash returns the height and block whose header hashes to hash, or
// ok == false if no such block is stored.
func (t *BlockTable) GetByHash(hash chainhash.Hash) (height uint32, block *Block, ok bool, err error) {
	v, ok, err := t.lookup.Get(hash[:])
	if err != nil || !ok {
		return 0, nil, ok, err
	}
	height = serialize.Uint32(v, 0)
	block, err = t.Get(height)
	if err != nil {
		return 0, nil, false, err
	}
	return height, block, true, nil
}

// LastHeight returns the height of the most recently stored block, or
// NullHeight if the table is empty.
func (t *BlockTable) LastHeight() uint32 {
	if t.dir.Count() == 0 {
		return NullHeight
	}
	return t.dir.Count() - 1
}

// Unlink removes the block at height, which must be the current tip
// (height == LastHeight()). It is the caller's responsibility to have
// already unwound any auxiliary-table entries derived from this block.
func (t *BlockTable) Unlink(height uint32) error {
	if t.dir.Count() == 0 || height != t.dir.Count()-1 {
		return fmt.Errorf("tables: unlink(%d) is not the current tip: %w", height, errkind.InvalidArgument)
	}
	b, err := t.Get(height)
	if err != nil {
		return err
	}
	hash := blockHash(b)
	if _, err := t.lookup.Unlink(hash[:]); err != nil {
		return err
	}
	return t.dir.Unlink(t.dir.Count() - 1)
}

// Sync persists the lookup table, directory, and body slab's headers.
// This is the global commit point of the database façade's push(): by
// the time it returns, every auxiliary table for the block has already
// been synced.
func (t *BlockTable) Sync() error {
	if err := t.lookup.Sync(); err != nil {
		return err
	}
	if err := t.dir.Sync(); err != nil {
		return err
	}
	return t.bodies.Sync()
}
