// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package multimap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-chainstore/chainstore/internal/mmapfile"
)

func newTestFile(t *testing.T, name string) *mmapfile.File {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, mmapfile.CreateEmpty(path))
	mf, err := mmapfile.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mf.Close() })
	_, err = mf.Resize(4096)
	require.NoError(t, err)
	return mf
}

func newTestMap(t *testing.T, bucketCount uint32, keySize int, payloadSize int64) *Map {
	indexFile := newTestFile(t, "index")
	listFile := newTestFile(t, "list")
	m, err := InitializeNew(indexFile, bucketCount, keySize, listFile, payloadSize)
	require.NoError(t, err)
	return m
}

func TestAddThenWalkReturnsInsertionReverseOrder(t *testing.T) {
	m := newTestMap(t, 4, 4, 1)
	key := []byte{1, 2, 3, 4}

	_, err := m.Add(key, []byte{1})
	require.NoError(t, err)
	_, err = m.Add(key, []byte{2})
	require.NoError(t, err)
	_, err = m.Add(key, []byte{3})
	require.NoError(t, err)

	got, err := m.Walk(key)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{3}, {2}, {1}}, got)
}

func TestLookupMissingKey(t *testing.T) {
	m := newTestMap(t, 4, 4, 1)
	_, ok, err := m.Lookup([]byte{9, 9, 9, 9})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteLastUnwindsInReverseOfAdd(t *testing.T) {
	m := newTestMap(t, 4, 4, 1)
	key := []byte{5, 5, 5, 5}

	_, err := m.Add(key, []byte{1})
	require.NoError(t, err)
	_, err = m.Add(key, []byte{2})
	require.NoError(t, err)
	_, err = m.Add(key, []byte{3})
	require.NoError(t, err)

	removed, err := m.DeleteLast(key)
	require.NoError(t, err)
	require.True(t, removed)
	got, err := m.Walk(key)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{2}, {1}}, got)

	removed, err = m.DeleteLast(key)
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = m.DeleteLast(key)
	require.NoError(t, err)
	require.True(t, removed)

	_, ok, err := m.Lookup(key)
	require.NoError(t, err)
	require.False(t, ok)

	removed, err = m.DeleteLast(key)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestDifferentKeysHaveIndependentChains(t *testing.T) {
	m := newTestMap(t, 4, 4, 1)
	k1 := []byte{1, 0, 0, 0}
	k2 := []byte{2, 0, 0, 0}

	_, err := m.Add(k1, []byte{0xAA})
	require.NoError(t, err)
	_, err = m.Add(k2, []byte{0xBB})
	require.NoError(t, err)

	got1, err := m.Walk(k1)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0xAA}}, got1)

	got2, err := m.Walk(k2)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0xBB}}, got2)
}

func TestSyncAndReopen(t *testing.T) {
	indexFile := newTestFile(t, "index")
	listFile := newTestFile(t, "list")
	m, err := InitializeNew(indexFile, 4, 4, listFile, 2)
	require.NoError(t, err)

	key := []byte{7, 7, 7, 7}
	_, err = m.Add(key, []byte{1, 2})
	require.NoError(t, err)
	require.NoError(t, m.Sync())

	reopened, err := Start(indexFile, 4, listFile, 2)
	require.NoError(t, err)
	got, err := reopened.Walk(key)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{1, 2}}, got)
}
