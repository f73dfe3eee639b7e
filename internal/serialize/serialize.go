// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package serialize holds the little-endian read/write primitives shared
// by every on-disk structure in this module. Most allocators read and
// write single fixed-offset fields and just call the Uint32/Uint64
// helpers directly against a mapped byte slice; Cursor exists for the
// handful of places (history shard entries) that serialize several
// variable-position fields back to back.
package serialize

import (
	"encoding/binary"
	"fmt"
)

// SentinelIndex32 is the reserved "empty" value for a 32-bit record index.
const SentinelIndex32 = uint32(0xFFFFFFFF)

// SentinelOffset64 is the reserved "empty" value for a 64-bit slab offset.
const SentinelOffset64 = uint64(0xFFFFFFFFFFFFFFFF)

// Uint32 reads a little-endian uint32 at off.
func Uint32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// PutUint32 writes a little-endian uint32 at off.
func PutUint32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// Uint64 reads a little-endian uint64 at off.
func Uint64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

// PutUint64 writes a little-endian uint64 at off.
func PutUint64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// Uint16 reads a little-endian uint16 at off.
func Uint16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

// PutUint16 writes a little-endian uint16 at off.
func PutUint16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:off+2], v)
}

// Cursor is a forward-only little-endian encoder/decoder over a byte
// slice. It is used where a structure packs several differently-sized
// fields back to back, such as a history shard entry's row-count,
// bucket-index array, and row stream.
type Cursor struct {
	b   []byte
	off int
}

// NewCursor returns a Cursor writing into (or reading from) b starting at
// offset 0.
func NewCursor(b []byte) *Cursor {
	return &Cursor{b: b}
}

// Offset returns the cursor's current position.
func (c *Cursor) Offset() int {
	return c.off
}

// Remaining returns the number of bytes left before the cursor runs off
// the end of its backing slice.
func (c *Cursor) Remaining() int {
	return len(c.b) - c.off
}

func (c *Cursor) need(n int) error {
	if c.off+n > len(c.b) {
		return fmt.Errorf("serialize: cursor out of bounds: need %d bytes at offset %d, have %d", n, c.off, len(c.b))
	}
	return nil
}

// PutUint16 writes v and advances the cursor by 2.
func (c *Cursor) PutUint16(v uint16) error {
	if err := c.need(2); err != nil {
		return err
	}
	PutUint16(c.b, c.off, v)
	c.off += 2
	return nil
}

// GetUint16 reads a uint16 and advances the cursor by 2.
func (c *Cursor) GetUint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := Uint16(c.b, c.off)
	c.off += 2
	return v, nil
}

// PutUint32 writes v and advances the cursor by 4.
func (c *Cursor) PutUint32(v uint32) error {
	if err := c.need(4); err != nil {
		return err
	}
	PutUint32(c.b, c.off, v)
	c.off += 4
	return nil
}

// GetUint32 reads a uint32 and advances the cursor by 4.
func (c *Cursor) GetUint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := Uint32(c.b, c.off)
	c.off += 4
	return v, nil
}

// PutUint64 writes v and advances the cursor by 8.
func (c *Cursor) PutUint64(v uint64) error {
	if err := c.need(8); err != nil {
		return err
	}
	PutUint64(c.b, c.off, v)
	c.off += 8
	return nil
}

// GetUint64 reads a uint64 and advances the cursor by 8.
func (c *Cursor) GetUint64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := Uint64(c.b, c.off)
	c.off += 8
	return v, nil
}

// PutBytes copies p into the cursor and advances by len(p).
func (c *Cursor) PutBytes(p []byte) error {
	if err := c.need(len(p)); err != nil {
		return err
	}
	copy(c.b[c.off:c.off+len(p)], p)
	c.off += len(p)
	return nil
}

// GetBytes returns a slice (aliasing the cursor's backing array) of the
// next n bytes and advances the cursor.
func (c *Cursor) GetBytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	p := c.b[c.off : c.off+n]
	c.off += n
	return p, nil
}
