// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chainwire

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/ripemd160"
)

// stealthDataSize is the payload carried by a stealth output's OP_RETURN
// script: a 4-byte prefix filter followed by an unsigned 32-byte
// ephemeral public key (spec §4.9: "an unsigned ephemeral 32-byte key
// and a 32-bit prefix").
const stealthDataSize = 4 + 32

// StealthPair is the (ephemeral key, payment address) pair recovered
// from two adjacent transaction outputs.
type StealthPair struct {
	Prefix                 uint32
	EphemeralPubkeyHash160 [20]byte
	AddressHash            [20]byte
}

// ExtractStealthPair checks whether outputs[i] and outputs[i+1] together
// encode a stealth payment (spec §4.9): output i is a NULL_DATA script
// carrying the prefix and ephemeral key, and output i+1 pays a standard
// P2PKH address. It reports ok == false, with no error, for every output
// that doesn't match -- this is a pattern test over attacker-controlled
// script bytes, not a validation failure.
func ExtractStealthPair(outputs []*wire.TxOut, i int) (StealthPair, bool) {
	if i+1 >= len(outputs) {
		return StealthPair{}, false
	}

	prefix, ephemeral, ok := decodeStealthData(outputs[i].PkScript)
	if !ok {
		return StealthPair{}, false
	}

	addrHash, ok := decodeP2PKHHash(outputs[i+1].PkScript)
	if !ok {
		return StealthPair{}, false
	}

	return StealthPair{
		Prefix:                 prefix,
		EphemeralPubkeyHash160: hash160(ephemeral),
		AddressHash:            addrHash,
	}, true
}

// decodeStealthData reports the (prefix, ephemeral key) carried by a
// NULL_DATA script, if script is one.
func decodeStealthData(script []byte) (prefix uint32, ephemeral []byte, ok bool) {
	if txscript.GetScriptClass(script) != txscript.NullDataTy {
		return 0, nil, false
	}
	pushes, err := txscript.PushedData(script)
	if err != nil || len(pushes) == 0 {
		return 0, nil, false
	}
	data := pushes[0]
	if len(data) != stealthDataSize {
		return 0, nil, false
	}
	prefix = uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	return prefix, data[4:], true
}

// AddressHash returns the 20-byte hash160 encoded in script, if script is
// a standard pay-to-pubkey-hash script. It is the façade's hook for
// turning a transaction output into the key the history table is indexed
// by (spec §4.8).
func AddressHash(script []byte) ([20]byte, bool) {
	return decodeP2PKHHash(script)
}

// decodeP2PKHHash extracts the 20-byte hash160 from a standard
// OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG script.
func decodeP2PKHHash(script []byte) (hash [20]byte, ok bool) {
	const p2pkhLen = 25
	if len(script) != p2pkhLen {
		return hash, false
	}
	if script[0] != txscript.OP_DUP ||
		script[1] != txscript.OP_HASH160 ||
		script[2] != txscript.OP_DATA_20 ||
		script[23] != txscript.OP_EQUALVERIFY ||
		script[24] != txscript.OP_CHECKSIG {
		return hash, false
	}
	copy(hash[:], script[3:23])
	return hash, true
}

// hash160 is RIPEMD160(SHA256(b)), Bitcoin's standard "hash of a public
// key" -- used here to turn the 32-byte ephemeral key carried in a
// stealth output into the 20-byte width the stealth table's row shares
// with every other address hash in this module.
func hash160(b []byte) [20]byte {
	sha := sha256.Sum256(b)
	r := ripemd160.New()
	r.Write(sha[:])
	var out [20]byte
	copy(out[:], r.Sum(nil))
	return out
}
