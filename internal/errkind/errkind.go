// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package errkind holds the engine's abstract error taxonomy (spec §7) as
// plain sentinel values. It has no dependencies so every allocator, table,
// and the root package can all wrap one of these with %w and be compared
// against with errors.Is, without an import cycle back through the root
// package.
package errkind

import "errors"

var (
	IO              = errors.New("io error")
	Corrupt         = errors.New("corrupt data")
	InvalidArgument = errors.New("invalid argument")
	NotFound        = errors.New("not found")
	AlreadyOpen     = errors.New("database already open")
	Duplicate       = errors.New("duplicate entry")
)
