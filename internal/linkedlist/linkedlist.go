// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package linkedlist implements the singly-linked record list (spec
// §4.5): nodes of [next:4][payload:P] stored on a recordfile.Allocator,
// addressed by an explicit head index held by the caller (typically
// internal/multimap). next == serialize.SentinelIndex32 marks the end of
// a list.
package linkedlist

import (
	"fmt"

	"github.com/go-chainstore/chainstore/internal/errkind"
	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/recordfile"
	"github.com/go-chainstore/chainstore/internal/serialize"
)

// List is a singly-linked list of fixed-size payloads over a record
// allocator.
type List struct {
	items       *recordfile.Allocator
	payloadSize int64
}

func nodeSize(payloadSize int64) int64 {
	return 4 + payloadSize
}

// InitializeNew lays out a fresh, empty list (no nodes yet) at off
// inside mf.
func InitializeNew(mf *mmapfile.File, off int64, payloadSize int64) (*List, error) {
	items, err := recordfile.InitializeNew(mf, off, nodeSize(payloadSize))
	if err != nil {
		return nil, fmt.Errorf("linkedlist: InitializeNew: %w", err)
	}
	return &List{items: items, payloadSize: payloadSize}, nil
}

// Start opens an existing list at off inside mf.
func Start(mf *mmapfile.File, off int64, payloadSize int64) (*List, error) {
	items, err := recordfile.Start(mf, off, nodeSize(payloadSize))
	if err != nil {
		return nil, fmt.Errorf("linkedlist: Start: %w", err)
	}
	return &List{items: items, payloadSize: payloadSize}, nil
}

// Create allocates a new node whose next is head and whose payload is
// payload, returning the new node's index -- the new list head.
func (l *List) Create(head uint32, payload []byte) (uint32, error) {
	if int64(len(payload)) != l.payloadSize {
		return 0, fmt.Errorf("linkedlist: payload length %d != %d: %w", len(payload), l.payloadSize, errkind.InvalidArgument)
	}
	idx, err := l.items.Allocate()
	if err != nil {
		return 0, err
	}
	rec, err := l.items.Get(idx)
	if err != nil {
		return 0, err
	}
	serialize.PutUint32(rec, 0, head)
	copy(rec[4:], payload)
	return idx, nil
}

// Next returns the next pointer stored in the node at index.
func (l *List) Next(index uint32) (uint32, error) {
	rec, err := l.items.Get(index)
	if err != nil {
		return 0, err
	}
	return serialize.Uint32(rec, 0), nil
}

// Payload returns the payload bytes stored in the node at index. The
// returned slice aliases the mapped file and is invalidated by a
// subsequent Create that triggers a remap.
func (l *List) Payload(index uint32) ([]byte, error) {
	rec, err := l.items.Get(index)
	if err != nil {
		return nil, err
	}
	return rec[4:], nil
}

// Walk returns, in order, the index and payload of every node reachable
// from head by following next pointers -- insertion-reverse order, since
// each Create prepends.
func (l *List) Walk(head uint32) ([]uint32, [][]byte, error) {
	var indices []uint32
	var payloads [][]byte
	cur := head
	for cur != serialize.SentinelIndex32 {
		rec, err := l.items.Get(cur)
		if err != nil {
			return nil, nil, err
		}
		indices = append(indices, cur)
		payloads = append(payloads, rec[4:])
		cur = serialize.Uint32(rec, 0)
	}
	return indices, payloads, nil
}

// Sync persists the record allocator's node count to its header.
func (l *List) Sync() error {
	return l.items.Sync()
}
