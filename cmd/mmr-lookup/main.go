// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// mmr-lookup dumps every row stored for a key in a record multimap
// (spec §6): the index table's key -> head chain, walked through the
// list file.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/multimap"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: mmr-lookup <hex_key> <value_size> <map_file> <rows_file>")
	}
	flag.Parse()
	args := flag.Args()
	if len(args) != 4 {
		flag.Usage()
		os.Exit(1)
	}

	key, err := hex.DecodeString(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "mmr-lookup: bad hex key %q: %v\n", args[0], err)
		os.Exit(1)
	}
	valueSize, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mmr-lookup: bad value_size %q: %v\n", args[1], err)
		os.Exit(1)
	}

	indexFile, err := mmapfile.Open(args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "mmr-lookup: open %s: %v\n", args[2], err)
		os.Exit(-1)
	}
	defer func() { _ = indexFile.Close() }()

	rowsFile, err := mmapfile.Open(args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "mmr-lookup: open %s: %v\n", args[3], err)
		os.Exit(-1)
	}
	defer func() { _ = rowsFile.Close() }()

	m, err := multimap.Start(indexFile, len(key), rowsFile, valueSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mmr-lookup: %v\n", err)
		os.Exit(-1)
	}

	rows, err := m.Walk(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mmr-lookup: walk: %v\n", err)
		os.Exit(-1)
	}
	for _, row := range rows {
		fmt.Println(hex.EncodeToString(row))
	}
}
