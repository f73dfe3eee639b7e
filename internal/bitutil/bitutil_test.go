// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bitutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopBits(t *testing.T) {
	b := []byte{0b01000001}
	require.Equal(t, uint32(0b01), TopBits(b, 2))
	require.Equal(t, uint32(0b0100), TopBits(b, 4))
	require.Equal(t, uint32(0b0), TopBits(b, 0))
}

func TestTopBitsAcrossBytes(t *testing.T) {
	b := []byte{0b11110000, 0b00001111}
	require.Equal(t, uint32(0b1111000000001), TopBits(b, 13))
}

func TestHasPrefix(t *testing.T) {
	b := []byte{0b01000001}
	require.True(t, HasPrefix(b, 0b01, 2))
	require.False(t, HasPrefix(b, 0b10, 2))
	require.True(t, HasPrefix(b, 0, 0))
}

func TestCompare(t *testing.T) {
	require.True(t, Less([]byte{0x00}, []byte{0x01}))
	require.False(t, Less([]byte{0x01}, []byte{0x00}))
	require.Equal(t, 0, Compare([]byte{0x01, 0x02}, []byte{0x01, 0x02}))
	require.True(t, Less([]byte{0b01000000}, []byte{0b01000001}))
}
