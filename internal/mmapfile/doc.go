// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmapfile owns a single read/write file descriptor and its shared
// memory mapping, growing and remapping the file on demand. It is the
// bottom of the storage engine: every allocator and table in this module
// addresses its backing file through a *mmapfile.File rather than talking
// to *os.File directly, so that the grow-on-demand and remap-on-resize
// behavior lives in exactly one place.
package mmapfile
