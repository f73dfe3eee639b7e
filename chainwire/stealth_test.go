// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chainwire

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func nullDataScript(t *testing.T, data []byte) []byte {
	s, err := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddData(data).Script()
	require.NoError(t, err)
	return s
}

func p2pkhScript(hash [20]byte) []byte {
	s := make([]byte, 25)
	s[0] = txscript.OP_DUP
	s[1] = txscript.OP_HASH160
	s[2] = txscript.OP_DATA_20
	copy(s[3:23], hash[:])
	s[23] = txscript.OP_EQUALVERIFY
	s[24] = txscript.OP_CHECKSIG
	return s
}

func TestExtractStealthPairMatches(t *testing.T) {
	var ephemeral [32]byte
	for i := range ephemeral {
		ephemeral[i] = byte(i)
	}
	data := append([]byte{0x01, 0x02, 0x03, 0x04}, ephemeral[:]...)
	var addrHash [20]byte
	for i := range addrHash {
		addrHash[i] = byte(0xA0 + i)
	}

	outputs := []*wire.TxOut{
		{PkScript: nullDataScript(t, data)},
		{PkScript: p2pkhScript(addrHash)},
	}

	pair, ok := ExtractStealthPair(outputs, 0)
	require.True(t, ok)
	require.Equal(t, uint32(0x01020304), pair.Prefix)
	require.Equal(t, addrHash, pair.AddressHash)
}

func TestExtractStealthPairRequiresFollowingOutput(t *testing.T) {
	outputs := []*wire.TxOut{
		{PkScript: nullDataScript(t, make([]byte, stealthDataSize))},
	}
	_, ok := ExtractStealthPair(outputs, 0)
	require.False(t, ok)
}

func TestExtractStealthPairRejectsWrongPayloadSize(t *testing.T) {
	outputs := []*wire.TxOut{
		{PkScript: nullDataScript(t, make([]byte, stealthDataSize-1))},
		{PkScript: p2pkhScript([20]byte{})},
	}
	_, ok := ExtractStealthPair(outputs, 0)
	require.False(t, ok)
}

func TestExtractStealthPairRejectsNonP2PKHFollower(t *testing.T) {
	outputs := []*wire.TxOut{
		{PkScript: nullDataScript(t, make([]byte, stealthDataSize))},
		{PkScript: []byte{txscript.OP_TRUE}},
	}
	_, ok := ExtractStealthPair(outputs, 0)
	require.False(t, ok)
}

func TestExtractStealthPairRejectsNonNullDataFirst(t *testing.T) {
	outputs := []*wire.TxOut{
		{PkScript: p2pkhScript([20]byte{})},
		{PkScript: p2pkhScript([20]byte{})},
	}
	_, ok := ExtractStealthPair(outputs, 0)
	require.False(t, ok)
}
