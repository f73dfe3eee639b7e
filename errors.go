// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package chainstore

import "github.com/go-chainstore/chainstore/internal/errkind"

// Sentinel error kinds, matching the abstract taxonomy the engine is
// specified against (spec §7). Every allocator, hash table, and shard in
// this module wraps one of these (via internal/errkind, to avoid an
// import cycle back through this package) with %w, so callers can
// errors.Is against the exported names here regardless of which
// component produced the failure.
var (
	// ErrIO is returned when a file operation (open, truncate, mmap,
	// read, write) failed for reasons outside the engine's control.
	ErrIO = errkind.IO

	// ErrCorrupt is returned when an on-disk invariant is violated,
	// either at open time (a truncated or out-of-range header) or at
	// lookup time (an offset or height slot pointing past the end of
	// the file).
	ErrCorrupt = errkind.Corrupt

	// ErrInvalidArgument is returned for mis-sized keys/values, a
	// zero-sized slab allocation, an out-of-range height, or a scan
	// prefix wider than the shard's scan_bitsize.
	ErrInvalidArgument = errkind.InvalidArgument

	// ErrNotFound is returned by operations that have no null-pointer
	// or empty-sentinel return path of their own (pop-time lookups).
	// Ordinary miss-on-get is signalled by a boolean/ok return, not
	// this error.
	ErrNotFound = errkind.NotFound

	// ErrAlreadyOpen is returned when the database directory lock is
	// already held by another process.
	ErrAlreadyOpen = errkind.AlreadyOpen

	// ErrDuplicate is returned when a table that forbids duplicate
	// inserts (the historical transaction skip-list) sees one.
	ErrDuplicate = errkind.Duplicate
)
