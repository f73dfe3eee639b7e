// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package seqlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadSeqIsEven(t *testing.T) {
	var l SeqLock
	require.Equal(t, uint64(0), l.ReadSeq())
	l.Begin()
	l.End()
	require.Equal(t, uint64(2), l.ReadSeq())
}

func TestReadRetriesAcrossConcurrentWrite(t *testing.T) {
	var l SeqLock
	var shared int

	var wg sync.WaitGroup
	wg.Add(1)
	release := make(chan struct{})
	seen := make(chan int, 1)

	go func() {
		defer wg.Done()
		v := Read(&l, func() int {
			<-release
			return shared
		})
		seen <- v
	}()

	l.Begin()
	shared = 42
	close(release)
	l.End()

	wg.Wait()
	require.Equal(t, 42, <-seen)
}

func TestDoBracketsSeqAsOddThenEven(t *testing.T) {
	var l SeqLock
	var observedOdd bool
	l.Do(func() {
		observedOdd = l.seq.Load()%2 == 1
	})
	require.True(t, observedOdd)
	require.Equal(t, uint64(2), l.seq.Load())
}
