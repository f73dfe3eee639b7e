// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tables

import (
	"fmt"

	"github.com/go-chainstore/chainstore/internal/errkind"
	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/multimap"
	"github.com/go-chainstore/chainstore/internal/serialize"
)

// addressHashSize is the width of the address key the history table is
// keyed by (spec §4.8: "20-byte address hash").
const addressHashSize = 20

// RowKind distinguishes a history row recording a receipt from one
// recording a spend.
type RowKind byte

const (
	RowOutput RowKind = iota
	RowSpend
)

// historyRowSize is [kind:1][point:36][height:4][value_or_checksum:8].
const historyRowSize = 1 + pointSize + 4 + 8

// HistoryRow is one entry in an address's history.
type HistoryRow struct {
	Kind             RowKind
	Point            Point
	Height           uint32
	ValueOrChecksum  uint64
}

func (r HistoryRow) encode() []byte {
	b := make([]byte, historyRowSize)
	b[0] = byte(r.Kind)
	copy(b[1:1+pointSize], r.Point.encode())
	serialize.PutUint32(b, 1+pointSize, r.Height)
	serialize.PutUint64(b, 1+pointSize+4, r.ValueOrChecksum)
	return b
}

func decodeHistoryRow(b []byte) HistoryRow {
	return HistoryRow{
		Kind:            RowKind(b[0]),
		Point:           decodePoint(b[1 : 1+pointSize]),
		Height:          serialize.Uint32(b, 1+pointSize),
		ValueOrChecksum: serialize.Uint64(b, 1+pointSize+4),
	}
}

// HistoryTable is the per-address history multimap of spec §4.8.
type HistoryTable struct {
	m *multimap.Map
}

// InitializeNewHistory lays out a fresh, empty history table.
func InitializeNewHistory(indexFile *mmapfile.File, bucketCount uint32, rowsFile *mmapfile.File) (*HistoryTable, error) {
	m, err := multimap.InitializeNew(indexFile, bucketCount, addressHashSize, rowsFile, historyRowSize)
	if err != nil {
		return nil, fmt.Errorf("tables: history table: %w", err)
	}
	return &HistoryTable{m: m}, nil
}

// StartHistory opens an existing history table.
func StartHistory(indexFile, rowsFile *mmapfile.File) (*HistoryTable, error) {
	m, err := multimap.Start(indexFile, addressHashSize, rowsFile, historyRowSize)
	if err != nil {
		return nil, fmt.Errorf("tables: history table: %w", err)
	}
	return &HistoryTable{m: m}, nil
}

// Add appends row to addressHash's history.
func (t *HistoryTable) Add(addressHash [addressHashSize]byte, row HistoryRow) error {
	_, err := t.m.Add(addressHash[:], row.encode())
	return err
}

// Rows returns addressHash's history, most recently added first.
func (t *HistoryTable) Rows(addressHash [addressHashSize]byte) ([]HistoryRow, error) {
	payloads, err := t.m.Walk(addressHash[:])
	if err != nil {
		return nil, err
	}
	rows := make([]HistoryRow, len(payloads))
	for i, p := range payloads {
		rows[i] = decodeHistoryRow(p)
	}
	return rows, nil
}

// DeleteLast undoes the most recently added row for addressHash. Callers
// (the database façade, unwinding a popped block) must call this in the
// exact reverse order the corresponding Adds happened in, per
// internal/multimap's DeleteLast contract.
func (t *HistoryTable) DeleteLast(addressHash [addressHashSize]byte) error {
	removed, err := t.m.DeleteLast(addressHash[:])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("tables: delete_last on address with no history: %w", errkind.Corrupt)
	}
	return nil
}

// Sync persists the history table's headers.
func (t *HistoryTable) Sync() error {
	return t.m.Sync()
}
