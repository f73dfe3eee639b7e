// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rhash

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-chainstore/chainstore/internal/mmapfile"
)

func newTestFile(t *testing.T) *mmapfile.File {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, mmapfile.CreateEmpty(path))
	mf, err := mmapfile.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mf.Close() })
	_, err = mf.Resize(4096)
	require.NoError(t, err)
	return mf
}

func newTestTable(t *testing.T, bucketCount uint32, keySize, valueSize int) *Table {
	mf := newTestFile(t)
	tbl, err := InitializeNew(mf, 0, bucketCount, keySize, valueSize)
	require.NoError(t, err)
	return tbl
}

func key32(v uint32) []byte {
	b := make([]byte, 4)
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	return b
}

// scenario A from spec §8.
func TestRoundTrip(t *testing.T) {
	tbl := newTestTable(t, 4, 4, 8)

	require.NoError(t, tbl.Store(key32(0), bytes8(0)))
	require.NoError(t, tbl.Store(key32(1), []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, tbl.Sync())

	v, ok, err := tbl.Get(key32(0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bytes8(0), v)

	v, ok, err = tbl.Get(key32(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, v)

	_, ok, err = tbl.Get(key32(2))
	require.NoError(t, err)
	require.False(t, ok)
}

func bytes8(fill byte) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestDuplicateKeysShadowMostRecent(t *testing.T) {
	tbl := newTestTable(t, 1, 4, 1)
	k := key32(7)

	require.NoError(t, tbl.Store(k, []byte{1}))
	require.NoError(t, tbl.Store(k, []byte{2}))
	require.NoError(t, tbl.Store(k, []byte{3}))

	v, ok, err := tbl.Get(k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{3}, v)

	removed, err := tbl.Unlink(k)
	require.NoError(t, err)
	require.True(t, removed)
	v, ok, err = tbl.Get(k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{2}, v)

	removed, err = tbl.Unlink(k)
	require.NoError(t, err)
	require.True(t, removed)
	v, ok, err = tbl.Get(k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{1}, v)

	removed, err = tbl.Unlink(k)
	require.NoError(t, err)
	require.True(t, removed)
	_, ok, err = tbl.Get(k)
	require.NoError(t, err)
	require.False(t, ok)

	removed, err = tbl.Unlink(k)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestUnlinkSplicesNonHeadItem(t *testing.T) {
	tbl := newTestTable(t, 1, 4, 1)
	require.NoError(t, tbl.Store(key32(1), []byte{1}))
	require.NoError(t, tbl.Store(key32(2), []byte{2}))
	require.NoError(t, tbl.Store(key32(3), []byte{3}))

	// chain head is key32(3) -> key32(2) -> key32(1); unlink the middle
	removed, err := tbl.Unlink(key32(2))
	require.NoError(t, err)
	require.True(t, removed)

	v, ok, err := tbl.Get(key32(3))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{3}, v)

	v, ok, err = tbl.Get(key32(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{1}, v)

	_, ok, err = tbl.Get(key32(2))
	require.NoError(t, err)
	require.False(t, ok)
}

// mirrors TestSplit2: Get is the lock-free read hot path (spec §5) and
// must not allocate.
func TestGetAllocFree(t *testing.T) {
	tbl := newTestTable(t, 4, 4, 8)
	require.NoError(t, tbl.Store(key32(0), bytes8(0)))
	require.NoError(t, tbl.Store(key32(1), bytes8(1)))
	require.NoError(t, tbl.Sync())

	k := key32(1)
	var v []byte
	var ok bool
	var err error
	allocs := testing.AllocsPerRun(100, func() {
		v, ok, err = tbl.Get(k)
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bytes8(1), v)
	require.Zero(t, allocs)
}

func TestStartReopensExistingTable(t *testing.T) {
	mf := newTestFile(t)
	tbl, err := InitializeNew(mf, 0, 4, 4, 8)
	require.NoError(t, err)
	require.NoError(t, tbl.Store(key32(5), bytes8(9)))
	require.NoError(t, tbl.Sync())

	reopened, err := Start(mf, 0, 4, 8)
	require.NoError(t, err)
	v, ok, err := reopened.Get(key32(5))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bytes8(9), v)
}
