// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// count-records prints the record count stored in a record allocator's
// header (spec §6).
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/recordfile"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: count-records <file> <record_size> [offset]")
	}
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	path := args[0]
	recordSize, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "count-records: bad record_size %q: %v\n", args[1], err)
		os.Exit(1)
	}

	var offset int64
	if len(args) >= 3 {
		offset, err = strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "count-records: bad offset %q: %v\n", args[2], err)
			os.Exit(1)
		}
	}

	mf, err := mmapfile.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "count-records: open %s: %v\n", path, err)
		os.Exit(-1)
	}
	defer func() { _ = mf.Close() }()

	alloc, err := recordfile.Start(mf, offset, recordSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "count-records: %v\n", err)
		os.Exit(-1)
	}

	fmt.Println(alloc.Count())
}
