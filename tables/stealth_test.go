// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tables

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func newTestStealthTable(t *testing.T) *StealthTable {
	mf := newTestFile(t, "stealth")
	st, err := InitializeNewStealth(mf, 8)
	require.NoError(t, err)
	return st
}

func sampleStealthRow(fill byte) StealthRow {
	var r StealthRow
	for i := range r.EphemeralPubkeyHash160 {
		r.EphemeralPubkeyHash160[i] = fill
	}
	for i := range r.AddressHash {
		r.AddressHash[i] = fill + 1
	}
	r.TxHash = chainhash.Hash{fill + 2}
	return r
}

func TestStealthTableAddSyncAndScan(t *testing.T) {
	st := newTestStealthTable(t)
	row := sampleStealthRow(0x10)

	require.NoError(t, st.Add(0x01020304, row))
	require.NoError(t, st.Sync(1))

	var got []StealthRow
	err := st.Scan(0x01020304, 32, 0, func(r StealthRow) { got = append(got, r) })
	require.NoError(t, err)
	require.Equal(t, []StealthRow{row}, got)
}

func TestStealthTableUnlinkRollsBackHeight(t *testing.T) {
	st := newTestStealthTable(t)
	row := sampleStealthRow(0x20)

	require.NoError(t, st.Add(0xAABBCCDD, row))
	require.NoError(t, st.Sync(1))
	require.NoError(t, st.Unlink(1))

	var got []StealthRow
	err := st.Scan(0xAABBCCDD, 32, 0, func(r StealthRow) { got = append(got, r) })
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestStealthTableScanMissesUnmatchedPrefix(t *testing.T) {
	st := newTestStealthTable(t)
	require.NoError(t, st.Add(0x01020304, sampleStealthRow(0x30)))
	require.NoError(t, st.Sync(1))

	var got []StealthRow
	err := st.Scan(0xFFFFFFFF, 32, 0, func(r StealthRow) { got = append(got, r) })
	require.NoError(t, err)
	require.Empty(t, got)
}
