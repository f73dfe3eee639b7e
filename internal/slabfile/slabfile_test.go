// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package slabfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-chainstore/chainstore/internal/mmapfile"
)

func newTestAllocator(t *testing.T) *Allocator {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, mmapfile.CreateEmpty(path))
	mf, err := mmapfile.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mf.Close() })
	_, err = mf.Resize(4096)
	require.NoError(t, err)

	a, err := InitializeNew(mf, 0)
	require.NoError(t, err)
	return a
}

func TestAllocateAdvancesEndOffset(t *testing.T) {
	a := newTestAllocator(t)
	start := a.EndOffset()

	off1, err := a.Allocate(10)
	require.NoError(t, err)
	require.Equal(t, start, off1)

	off2, err := a.Allocate(20)
	require.NoError(t, err)
	require.Equal(t, start+10, off2)

	require.Equal(t, start+30, a.EndOffset())
}

func TestAllocateZeroSizeFails(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.Allocate(0)
	require.Error(t, err)
}

func TestBytesRoundTrip(t *testing.T) {
	a := newTestAllocator(t)
	off, err := a.Allocate(4)
	require.NoError(t, err)

	b, err := a.Bytes(off, 4)
	require.NoError(t, err)
	copy(b, []byte{1, 2, 3, 4})

	b2, err := a.Bytes(off, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, b2)
}

func TestBytesBeyondEndOffsetFails(t *testing.T) {
	a := newTestAllocator(t)
	off, err := a.Allocate(4)
	require.NoError(t, err)
	_, err = a.Bytes(off, 8)
	require.Error(t, err)
}

func TestAllocateGrowsBackingFile(t *testing.T) {
	a := newTestAllocator(t)
	for i := 0; i < 10; i++ {
		_, err := a.Allocate(1000)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, a.mf.Size(), int64(10*1000))
}

func TestSyncPersistsEndOffset(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.Allocate(16)
	require.NoError(t, err)
	require.NoError(t, a.Sync())

	a2, err := Start(a.mf, 0)
	require.NoError(t, err)
	require.Equal(t, a.EndOffset(), a2.EndOffset())
}

func TestUnlinkTruncatesEndOffset(t *testing.T) {
	a := newTestAllocator(t)
	off, err := a.Allocate(16)
	require.NoError(t, err)
	_, err = a.Allocate(16)
	require.NoError(t, err)

	require.NoError(t, a.Unlink(off+16))
	require.Equal(t, off+16, a.EndOffset())

	require.Error(t, a.Unlink(0))
}
