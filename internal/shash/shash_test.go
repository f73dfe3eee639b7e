// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package shash

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

func newTestTable(t *testing.T, bucketCount uint32, keySize int) *Table {
	mf := newTestFile(t)
	tbl, err := InitializeNew(mf, 0, bucketCount, keySize)
	require.NoError(t, err)
	return tbl
}

// scenario B from spec §8.
func TestDuplicateValuesOfDifferentLength(t *testing.T) {
	tbl := newTestTable(t, 1, 4)
	key := []byte{1, 2, 3, 4}

	off1, err := tbl.Store(key, []byte("A"))
	require.NoError(t, err)
	off2, err := tbl.Store(key, []byte("BB"))
	require.NoError(t, err)

	v, off, ok, err := tbl.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "BB", string(v))
	require.Equal(t, off2, off)

	removed, err := tbl.Unlink(key, off2)
	require.NoError(t, err)
	require.True(t, removed)

	v, off, ok, err = tbl.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "A", string(v))
	require.Equal(t, off1, off)

	removed, err = tbl.Unlink(key, off1)
	require.NoError(t, err)
	require.True(t, removed)

	_, _, ok, err = tbl.Get(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetMissOnNeverInsertedKey(t *testing.T) {
	tbl := newTestTable(t, 4, 4)
	_, _, ok, err := tbl.Get([]byte{9, 9, 9, 9})
	require.NoError(t, err)
	require.False(t, ok)
}

// mirrors TestSplit2: Get is the lock-free read hot path (spec §5) and
// must not allocate.
func TestGetAllocFree(t *testing.T) {
	tbl := newTestTable(t, 4, 4)
	key := []byte{1, 0, 0, 0}
	_, err := tbl.Store(key, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, tbl.Sync())

	var v []byte
	var ok bool
	allocs := testing.AllocsPerRun(100, func() {
		v, _, ok, err = tbl.Get(key)
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", string(v))
	require.Zero(t, allocs)
}

func TestSyncAndReopen(t *testing.T) {
	mf := newTestFile(t)
	tbl, err := InitializeNew(mf, 0, 4, 4)
	require.NoError(t, err)

	_, err = tbl.Store([]byte{1, 0, 0, 0}, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, tbl.Sync())

	reopened, err := Start(mf, 0, 4)
	require.NoError(t, err)
	v, _, ok, err := reopened.Get([]byte{1, 0, 0, 0})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", string(v))
}
