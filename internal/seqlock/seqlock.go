// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package seqlock implements the reader/writer synchronisation scheme
// described in spec §5: a process-wide monotonically increasing counter
// that the single writer bumps to odd before mutating and to the next
// even value after. Readers snapshot the counter, do their reads, and
// retry if it changed or was caught mid-update.
//
// This is not a general-purpose seqlock library -- there isn't a
// commonly-used idiomatic one in the Go ecosystem for this specific
// pattern, so it is built directly on sync/atomic.
package seqlock

import (
	"sync/atomic"
	"time"
)

// SeqLock is a single writer / multiple reader sequence lock.
type SeqLock struct {
	seq atomic.Uint64
}

// Begin marks the start of a write transaction, making seq odd so
// concurrent readers know a commit is in flight.
func (l *SeqLock) Begin() {
	l.seq.Add(1)
}

// End marks the end of a write transaction, making seq even again so
// readers know it's safe to trust what they read.
func (l *SeqLock) End() {
	l.seq.Add(1)
}

// Do runs fn as a single write transaction bracketed by Begin/End.
func (l *SeqLock) Do(fn func()) {
	l.Begin()
	defer l.End()
	fn()
}

// ReadSeq snapshots the current sequence number, retrying with a short
// sleep while a write is in flight (an odd value). The returned value is
// always even.
func (l *SeqLock) ReadSeq() uint64 {
	for {
		s := l.seq.Load()
		if s%2 == 0 {
			return s
		}
		time.Sleep(time.Microsecond)
	}
}

// Retry reports whether the sequence number has changed since before,
// meaning the reader must discard what it read and try again.
func (l *SeqLock) Retry(before uint64) bool {
	return l.seq.Load() != before
}

// Read runs fn (which should only read, never mutate, shared state) and
// retries it until fn observes a consistent snapshot -- that is, until
// the sequence number is unchanged and even both before and after fn
// runs. fn's return value from the last (successful) attempt is
// returned.
func Read[T any](l *SeqLock, fn func() T) T {
	for {
		before := l.ReadSeq()
		v := fn()
		if !l.Retry(before) {
			return v
		}
	}
}
