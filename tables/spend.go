// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tables

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/serialize"
	"github.com/go-chainstore/chainstore/internal/shash"
)

// pointSize is the encoded size of an outpoint/inpoint: a 32-byte
// transaction hash and a 4-byte output/input index.
const pointSize = chainhash.HashSize + 4

// Point identifies a transaction input or output.
type Point struct {
	Hash  chainhash.Hash
	Index uint32
}

func (p Point) encode() []byte {
	b := make([]byte, pointSize)
	copy(b, p.Hash[:])
	serialize.PutUint32(b, chainhash.HashSize, p.Index)
	return b
}

func decodePoint(b []byte) Point {
	var p Point
	copy(p.Hash[:], b[:chainhash.HashSize])
	p.Index = serialize.Uint32(b, chainhash.HashSize)
	return p
}

// SpendTable maps an outpoint (the output being spent) to the inpoint
// (the transaction input that spends it), per spec §4.8.
type SpendTable struct {
	table *shash.Table
}

// InitializeNewSpend lays out a fresh, empty spend table.
func InitializeNewSpend(mf *mmapfile.File, bucketCount uint32) (*SpendTable, error) {
	t, err := shash.InitializeNew(mf, 0, bucketCount, pointSize)
	if err != nil {
		return nil, fmt.Errorf("tables: spend table: %w", err)
	}
	return &SpendTable{table: t}, nil
}

// StartSpend opens an existing spend table.
func StartSpend(mf *mmapfile.File) (*SpendTable, error) {
	t, err := shash.Start(mf, 0, pointSize)
	if err != nil {
		return nil, fmt.Errorf("tables: spend table: %w", err)
	}
	return &SpendTable{table: t}, nil
}

// Store records that outpoint is spent by inpoint.
func (t *SpendTable) Store(outpoint, inpoint Point) error {
	_, err := t.table.Store(outpoint.encode(), inpoint.encode())
	return err
}

// Get returns the inpoint spending outpoint, or ok == false if outpoint
// is unspent (as far as this table knows).
func (t *SpendTable) Get(outpoint Point) (inpoint Point, ok bool, err error) {
	v, _, ok, err := t.table.Get(outpoint.encode())
	if err != nil || !ok {
		return Point{}, ok, err
	}
	return decodePoint(v), true, nil
}

// Unlink removes the spend record for outpoint, used when popping the
// block whose transaction spent it.
func (t *SpendTable) Unlink(outpoint Point) (bool, error) {
	_, offset, ok, err := t.table.Get(outpoint.encode())
	if err != nil || !ok {
		return false, err
	}
	return t.table.Unlink(outpoint.encode(), offset)
}

// Sync persists the spend table's header.
func (t *SpendTable) Sync() error {
	return t.table.Sync()
}
