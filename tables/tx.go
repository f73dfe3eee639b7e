// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tables

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/go-chainstore/chainstore/internal/errkind"
	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/serialize"
	"github.com/go-chainstore/chainstore/internal/shash"
)

// duplicateTx identifies the two historically duplicate transactions
// (spec §4.8, §9): BIP30 violations where a later coinbase transaction
// happened to hash-collide with an earlier, not-yet-matured one. These
// two (height, index) pairs are the full set of duplicates skipped on
// insert.
type duplicateTx struct {
	height uint32
	index  uint32
}

var historicalDuplicates = map[duplicateTx]bool{
	{height: 91842, index: 0}: true,
	{height: 91880, index: 0}: true,
}

// IsHistoricalDuplicate reports whether (height, indexInBlock) names one
// of the two known duplicate-hash transactions that must be skipped on
// insert.
func IsHistoricalDuplicate(height, indexInBlock uint32) bool {
	return historicalDuplicates[duplicateTx{height: height, index: indexInBlock}]
}

// TxTable maps a transaction hash to its location and serialized bytes
// (spec §4.8).
type TxTable struct {
	table *shash.Table
}

// InitializeNewTx lays out a fresh, empty transaction table.
func InitializeNewTx(mf *mmapfile.File, bucketCount uint32) (*TxTable, error) {
	t, err := shash.InitializeNew(mf, 0, bucketCount, chainhash.HashSize)
	if err != nil {
		return nil, fmt.Errorf("tables: tx table: %w", err)
	}
	return &TxTable{table: t}, nil
}

// StartTx opens an existing transaction table.
func StartTx(mf *mmapfile.File) (*TxTable, error) {
	t, err := shash.Start(mf, 0, chainhash.HashSize)
	if err != nil {
		return nil, fmt.Errorf("tables: tx table: %w", err)
	}
	return &TxTable{table: t}, nil
}

func encodeTxSlab(height, indexInBlock uint32, serializedTx []byte) []byte {
	b := make([]byte, 8+len(serializedTx))
	serialize.PutUint32(b, 0, height)
	serialize.PutUint32(b, 4, indexInBlock)
	copy(b[8:], serializedTx)
	return b
}

// Store records a transaction at (height, indexInBlock). If hash names
// one of the two historical duplicates, Store is a no-op and returns
// errkind.Duplicate so callers can treat it the way the façade does: log
// and move on, not abort the push.
func (t *TxTable) Store(hash chainhash.Hash, height, indexInBlock uint32, serializedTx []byte) error {
	if IsHistoricalDuplicate(height, indexInBlock) {
		return fmt.Errorf("tables: tx %s at (%d,%d) is a known duplicate: %w", hash, height, indexInBlock, errkind.Duplicate)
	}
	_, err := t.table.Store(hash[:], encodeTxSlab(height, indexInBlock, serializedTx))
	return err
}

// Get returns the (height, indexInBlock, serializedTx) stored for hash,
// or ok == false if hash was never stored.
func (t *TxTable) Get(hash chainhash.Hash) (height, indexInBlock uint32, serializedTx []byte, ok bool, err error) {
	v, _, ok, err := t.table.Get(hash[:])
	if err != nil || !ok {
		return 0, 0, nil, ok, err
	}
	if len(v) < 8 {
		return 0, 0, nil, false, fmt.Errorf("tables: tx slab too short: %w", errkind.Corrupt)
	}
	height = serialize.Uint32(v, 0)
	indexInBlock = serialize.Uint32(v, 4)
	serializedTx = v[8:]
	return height, indexInBlock, serializedTx, true, nil
}

// Unlink removes the transaction stored under hash.
func (t *TxTable) Unlink(hash chainhash.Hash) (bool, error) {
	_, offset, ok, err := t.table.Get(hash[:])
	if err != nil || !ok {
		return false, err
	}
	return t.table.Unlink(hash[:], offset)
}

// Sync persists the transaction table's header.
func (t *TxTable) Sync() error {
	return t.table.Sync()
}
