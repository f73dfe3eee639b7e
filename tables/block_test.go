// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tables

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func newTestBlockTable(t *testing.T) *BlockTable {
	lookup := newTestFile(t, "lookup")
	dir := newTestFile(t, "dir")
	bodies := newTestFile(t, "bodies")
	bt, err := InitializeNew(lookup, 4, dir, bodies)
	require.NoError(t, err)
	return bt
}

func blockWithHeader(fill byte) *Block {
	b := &Block{}
	for i := range b.Header {
		b.Header[i] = fill
	}
	b.TxHashes = []chainhash.Hash{{0x01}, {0x02}}
	return b
}

func TestBlockTableEmptyHasNullHeight(t *testing.T) {
	bt := newTestBlockTable(t)
	require.Equal(t, NullHeight, bt.LastHeight())
}

func TestBlockTableStoreAndGet(t *testing.T) {
	bt := newTestBlockTable(t)
	b := blockWithHeader(0xAA)

	height, err := bt.Store(b)
	require.NoError(t, err)
	require.Equal(t, uint32(0), height)
	require.Equal(t, uint32(0), bt.LastHeight())

	got, err := bt.Get(0)
	require.NoError(t, err)
	require.Equal(t, b.Header, got.Header)
	require.Equal(t, b.TxHashes, got.TxHashes)
}

func TestBlockTableStoreAssignsSequentialHeights(t *testing.T) {
	bt := newTestBlockTable(t)

	h0, err := bt.Store(blockWithHeader(0x01))
	require.NoError(t, err)
	h1, err := bt.Store(blockWithHeader(0x02))
	require.NoError(t, err)

	require.Equal(t, uint32(0), h0)
	require.Equal(t, uint32(1), h1)
	require.Equal(t, uint32(1), bt.LastHeight())
}

func TestBlockTableGetByHash(t *testing.T) {
	bt := newTestBlockTable(t)
	b := blockWithHeader(0xBB)
	height, err := bt.Store(b)
	require.NoError(t, err)

	hash := blockHash(b)
	gotHeight, gotBlock, ok, err := bt.GetByHash(hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, height, gotHeight)
	require.Equal(t, b.Header, gotBlock.Header)
}

func TestBlockTableGetByHashMissing(t *testing.T) {
	bt := newTestBlockTable(t)
	_, _, ok, err := bt.GetByHash(chainhash.Hash{0xFF})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlockTableUnlinkRequiresTip(t *testing.T) {
	bt := newTestBlockTable(t)
	_, err := bt.Store(blockWithHeader(0x01))
	require.NoError(t, err)
	_, err = bt.Store(blockWithHeader(0x02))
	require.NoError(t, err)

	err = bt.Unlink(0)
	require.Error(t, err)

	require.NoError(t, bt.Unlink(1))
	require.Equal(t, uint32(0), bt.LastHeight())

	_, _, ok, err := bt.GetByHash(blockHash(blockWithHeader(0x02)))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlockTableSyncAndReopen(t *testing.T) {
	lookup := newTestFile(t, "lookup")
	dir := newTestFile(t, "dir")
	bodies := newTestFile(t, "bodies")
	bt, err := InitializeNew(lookup, 4, dir, bodies)
	require.NoError(t, err)

	b := blockWithHeader(0xCC)
	_, err = bt.Store(b)
	require.NoError(t, err)
	require.NoError(t, bt.Sync())

	reopened, err := Start(lookup, dir, bodies)
	require.NoError(t, err)
	require.Equal(t, uint32(0), reopened.LastHeight())
	got, err := reopened.Get(0)
	require.NoError(t, err)
	require.Equal(t, b.Header, got.Header)
}
