// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package chainwire is the decode boundary between the opaque,
// caller-supplied serialized Bitcoin blocks the storage engine treats as
// external collaborators (spec §4.9, §6's "embedded genesis block") and
// the structured btcsuite/btcd types the rest of this module reasons
// about: block headers, transactions, and the stealth-payment pattern
// match over a transaction's outputs.
package chainwire

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/go-chainstore/chainstore/internal/errkind"
)

// DecodeBlock parses a serialized Bitcoin block. The caller's storage
// engine never constructs or validates blocks itself; it only needs to
// pull out the header, transaction hashes, and scripts.
func DecodeBlock(raw []byte) (*wire.MsgBlock, error) {
	var msg wire.MsgBlock
	if err := msg.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("chainwire: decode block: %w: %w", err, errkind.Corrupt)
	}
	return &msg, nil
}

// DecodeTx parses a single serialized transaction, as stored by the
// transaction table (spec §4.8's "serialized_tx : var").
func DecodeTx(raw []byte) (*wire.MsgTx, error) {
	var msg wire.MsgTx
	if err := msg.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("chainwire: decode tx: %w: %w", err, errkind.Corrupt)
	}
	return &msg, nil
}

// EncodeHeader returns the 80-byte serialized form of a block header,
// the exact bytes the block table stores (spec §4.8).
func EncodeHeader(h *wire.BlockHeader) ([80]byte, error) {
	var buf bytes.Buffer
	buf.Grow(80)
	if err := h.Serialize(&buf); err != nil {
		return [80]byte{}, fmt.Errorf("chainwire: encode header: %w", err)
	}
	var out [80]byte
	copy(out[:], buf.Bytes())
	return out, nil
}

// EncodeTx returns a transaction's canonical wire serialization, the
// "serialized_tx" stored by the transaction table.
func EncodeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("chainwire: encode tx: %w", err)
	}
	return buf.Bytes(), nil
}
