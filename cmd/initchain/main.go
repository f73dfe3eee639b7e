// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// initchain creates a chainstore database directory, writes empty table
// headers, and pushes the hard-coded genesis block (spec §6).
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/go-chainstore/chainstore"
	"github.com/go-chainstore/chainstore/tables"
)

// genesisHex is the serialized Bitcoin testnet3 genesis block.
const genesisHex = "0100000000000000000000000000000000000000000000000000000000000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4adae5494dffff001d1aa4ae18010100000001000000000000000000000000000000000000000000000000000000000000000000000000" +
	"4d04ffff001d0104455468652054696d65732030332f4a616e2f32303039204368616e63656c6c6f72206f6e206272696e6b206f66207365636f6e64206261696c6f757420666f72206261" +
	"6e6b73ffffffff0100f2052a01000000434104678afdb0fe5548271967f1a67130b7105cd6a828e03909a67962e0ea1f61deb649f6bc3f4cef38c4f35504e51ec112de5c384df7ba0b8d578a4c702b6bf11d5fac00000000"

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: initchain <dir>")
		os.Exit(1)
	}
	dir := os.Args[1]

	genesis, err := hex.DecodeString(genesisHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initchain: decode genesis: %v\n", err)
		os.Exit(-1)
	}

	db, err := chainstore.Open(dir, chainstore.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "initchain: open %s: %v\n", dir, err)
		os.Exit(-1)
	}
	defer func() { _ = db.Close() }()

	if db.LastHeight() != tables.NullHeight {
		fmt.Fprintf(os.Stderr, "initchain: %s already has a tip at height %d\n", dir, db.LastHeight())
		return
	}

	height, err := db.Push(genesis)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initchain: push genesis: %v\n", err)
		os.Exit(-1)
	}
	fmt.Printf("initialized %s, genesis at height %d\n", dir, height)
}
