// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chainwire

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func sampleTx() *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{}, Index: 0xffffffff},
		SignatureScript:  []byte{0x01, 0x02},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{Value: 5000000000, PkScript: []byte{txscriptOPTrue()}})
	return tx
}

func txscriptOPTrue() byte { return 0x51 }

func sampleBlock() *wire.MsgBlock {
	header := wire.NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0x1d00ffff, 0)
	header.Timestamp = time.Unix(1231006505, 0)
	block := wire.NewMsgBlock(header)
	block.AddTransaction(sampleTx())
	return block
}

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	block := sampleBlock()
	encoded, err := EncodeHeader(&block.Header)
	require.NoError(t, err)
	require.Len(t, encoded, 80)

	var buf wire.BlockHeader
	require.NoError(t, buf.Deserialize(bytes.NewReader(encoded[:])))
	require.Equal(t, block.Header.BlockHash(), buf.BlockHash())
}

func TestEncodeDecodeTxRoundTrip(t *testing.T) {
	tx := sampleTx()
	raw, err := EncodeTx(tx)
	require.NoError(t, err)

	decoded, err := DecodeTx(raw)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), decoded.TxHash())
}

func TestDecodeBlockRoundTrip(t *testing.T) {
	block := sampleBlock()
	var buf bytes.Buffer
	require.NoError(t, block.Serialize(&buf))

	decoded, err := DecodeBlock(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, block.Header.BlockHash(), decoded.Header.BlockHash())
	require.Len(t, decoded.Transactions, 1)
	require.Equal(t, block.Transactions[0].TxHash(), decoded.Transactions[0].TxHash())
}

func TestDecodeBlockRejectsGarbage(t *testing.T) {
	_, err := DecodeBlock([]byte{0x01, 0x02})
	require.Error(t, err)
}
