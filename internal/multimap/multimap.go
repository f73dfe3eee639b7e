// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package multimap implements the record multimap (spec §4.6): a
// rhash.Table mapping each key to the head index of an
// internal/linkedlist chain of that key's payloads, most recent first.
// It is the backing store for the history table, where one address hash
// accumulates many point/height/value entries over the life of the
// chain.
//
// The index table and the node list are independently-growing record
// allocators, so they're given separate backing files rather than two
// regions of one mmapfile.File; placing both in a single file would let
// one allocator's growth corrupt the other's region.
package multimap

import (
	"fmt"

	"github.com/go-chainstore/chainstore/internal/linkedlist"
	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/rhash"
	"github.com/go-chainstore/chainstore/internal/serialize"
)

// Map is a key -> list-of-payloads multimap.
type Map struct {
	index *rhash.Table // key -> head index, one live entry per key
	list  *linkedlist.List
}

func encodeHead(idx uint32) []byte {
	b := make([]byte, 4)
	serialize.PutUint32(b, 0, idx)
	return b
}

func decodeHead(b []byte) uint32 {
	return serialize.Uint32(b, 0)
}

// InitializeNew lays out a fresh, empty multimap: its index table at
// offset 0 of indexFile, and its node list at offset 0 of listFile.
func InitializeNew(indexFile *mmapfile.File, bucketCount uint32, keySize int, listFile *mmapfile.File, payloadSize int64) (*Map, error) {
	index, err := rhash.InitializeNew(indexFile, 0, bucketCount, keySize, 4)
	if err != nil {
		return nil, fmt.Errorf("multimap: InitializeNew index: %w", err)
	}
	list, err := linkedlist.InitializeNew(listFile, 0, payloadSize)
	if err != nil {
		return nil, fmt.Errorf("multimap: InitializeNew list: %w", err)
	}
	return &Map{index: index, list: list}, nil
}

// Start opens an existing multimap from its two backing files.
func Start(indexFile *mmapfile.File, keySize int, listFile *mmapfile.File, payloadSize int64) (*Map, error) {
	index, err := rhash.Start(indexFile, 0, keySize, 4)
	if err != nil {
		return nil, fmt.Errorf("multimap: Start index: %w", err)
	}
	list, err := linkedlist.Start(listFile, 0, payloadSize)
	if err != nil {
		return nil, fmt.Errorf("multimap: Start list: %w", err)
	}
	return &Map{index: index, list: list}, nil
}

// Add prepends payload to key's chain and returns the new head's node
// index.
func (m *Map) Add(key, payload []byte) (uint32, error) {
	head := serialize.SentinelIndex32
	v, ok, err := m.index.Get(key)
	if err != nil {
		return 0, err
	}
	if ok {
		head = decodeHead(v)
		if _, err := m.index.Unlink(key); err != nil {
			return 0, err
		}
	}

	newHead, err := m.list.Create(head, payload)
	if err != nil {
		return 0, err
	}
	if err := m.index.Store(key, encodeHead(newHead)); err != nil {
		return 0, err
	}
	return newHead, nil
}

// Lookup returns key's head node index, or ok == false if key has no
// entries.
func (m *Map) Lookup(key []byte) (head uint32, ok bool, err error) {
	v, ok, err := m.index.Get(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	return decodeHead(v), true, nil
}

// DeleteLast undoes the most recent still-present Add for key, rewiring
// the index to the previous node in the chain (or removing the key
// entirely if that was the only node).
//
// Callers must invoke DeleteLast in the exact reverse order of the Adds
// they want undone -- the chain only remembers "previous node", not
// "which block each node came from" -- which is why the database façade
// only ever uses this to unwind a single block's worth of entries at a
// time, most-recent-block first.
func (m *Map) DeleteLast(key []byte) (bool, error) {
	v, ok, err := m.index.Get(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	head := decodeHead(v)

	next, err := m.list.Next(head)
	if err != nil {
		return false, err
	}
	if _, err := m.index.Unlink(key); err != nil {
		return false, err
	}
	if next != serialize.SentinelIndex32 {
		if err := m.index.Store(key, encodeHead(next)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Payload returns the payload stored at node index idx, as returned by
// Add or discovered via Walk/Lookup.
func (m *Map) Payload(idx uint32) ([]byte, error) {
	return m.list.Payload(idx)
}

// Walk returns every payload currently reachable for key, most recently
// added first.
func (m *Map) Walk(key []byte) ([][]byte, error) {
	head, ok, err := m.Lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	_, payloads, err := m.list.Walk(head)
	return payloads, err
}

// Sync persists both the index table's and the list's on-disk headers.
func (m *Map) Sync() error {
	if err := m.index.Sync(); err != nil {
		return err
	}
	return m.list.Sync()
}
