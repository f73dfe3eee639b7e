// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tables

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/go-chainstore/chainstore/internal/historyshard"
	"github.com/go-chainstore/chainstore/internal/mmapfile"
)

// Stealth row settings (spec §4.8): a 4-byte scan prefix (the "stealth
// filter"), no outer sharding, an 8-bit bucket selector, and a 72-byte
// row value.
//
// A naive breakdown of that 72 bytes ("ephemeral_pubkey_hash:32 +
// address_hash:20 + tx_hash:32") sums to 84, not 72. row_value_size=72
// is taken as authoritative -- it's the number every allocation and
// bounds check in the shard actually uses -- and the mismatch is
// resolved by storing the ephemeral key's hash160 (20 bytes, Bitcoin's
// usual "hash of a public key" width) rather than a 32-byte hash:
// 20 + 20 + 32 = 72.
const (
	stealthTotalKeySize   = 4
	stealthShardedBitsize = 0
	stealthBucketBitsize  = 8
	stealthRowValueSize   = 20 + 20 + 32
)

// StealthRow is one stealth-payment sighting: the receiving address's
// history can be extended once a wallet matches the ephemeral key
// against its own scan key.
type StealthRow struct {
	EphemeralPubkeyHash160 [20]byte
	AddressHash            [20]byte
	TxHash                 chainhash.Hash
}

func (r StealthRow) encode() []byte {
	b := make([]byte, stealthRowValueSize)
	copy(b[0:20], r.EphemeralPubkeyHash160[:])
	copy(b[20:40], r.AddressHash[:])
	copy(b[40:72], r.TxHash[:])
	return b
}

func decodeStealthRow(b []byte) StealthRow {
	var r StealthRow
	copy(r.EphemeralPubkeyHash160[:], b[0:20])
	copy(r.AddressHash[:], b[20:40])
	copy(r.TxHash[:], b[40:72])
	return r
}

// StealthTable is the history shard backing stealth-payment prefix scans
// (spec §4.8).
type StealthTable struct {
	shard *historyshard.Shard
}

// InitializeNewStealth lays out a fresh, empty stealth table.
func InitializeNewStealth(indexFile *mmapfile.File, shardMaxEntries uint64) (*StealthTable, error) {
	s, err := historyshard.InitializeNew(indexFile, 0, stealthTotalKeySize, stealthShardedBitsize, stealthBucketBitsize, stealthRowValueSize, shardMaxEntries)
	if err != nil {
		return nil, fmt.Errorf("tables: stealth table: %w", err)
	}
	return &StealthTable{shard: s}, nil
}

// StartStealth opens an existing stealth table.
func StartStealth(indexFile *mmapfile.File, shardMaxEntries uint64) (*StealthTable, error) {
	s, err := historyshard.Start(indexFile, 0, stealthTotalKeySize, stealthShardedBitsize, stealthBucketBitsize, stealthRowValueSize, shardMaxEntries)
	if err != nil {
		return nil, fmt.Errorf("tables: stealth table: %w", err)
	}
	return &StealthTable{shard: s}, nil
}

// Add buffers row under the given 4-byte stealth prefix; the buffered
// row becomes durable only once Sync(height) is called.
func (t *StealthTable) Add(prefix uint32, row StealthRow) error {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, prefix)
	return t.shard.Add(key, row.encode())
}

// Sync commits height's buffered rows.
func (t *StealthTable) Sync(height uint64) error {
	return t.shard.Sync(height)
}

// Unlink discards every entry for heights >= height.
func (t *StealthTable) Unlink(height uint64) error {
	return t.shard.Unlink(height)
}

// Scan visits every row whose stealth prefix starts with the top
// prefixBits bits of prefix, across entries from fromHeight onward.
func (t *StealthTable) Scan(prefix uint32, prefixBits int, fromHeight uint64, cb func(StealthRow)) error {
	return t.shard.Scan(prefix>>uint(32-prefixBits), prefixBits, fromHeight, func(value []byte) {
		cb(decodeStealthRow(value))
	})
}
