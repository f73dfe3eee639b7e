// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package dirlock implements the process-wide database directory file
// lock described in spec §5: a well-known lock file inside the database
// directory, held with an exclusive, non-blocking flock(2) for the
// lifetime of the writer process. It is the only process-wide resource
// the engine owns, and it is released by Close (or process exit).
package dirlock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/go-chainstore/chainstore/internal/errkind"
)

// ErrAlreadyOpen is returned by Acquire when another process already
// holds the lock.
var ErrAlreadyOpen = errkind.AlreadyOpen

// LockFileName is the well-known lock file name created inside the
// database directory.
const LockFileName = ".chainstore.lock"

// Lock represents an acquired directory lock. Release it with Close.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive, non-blocking lock on dir's lock file,
// creating it if necessary. It returns ErrAlreadyOpen if another process
// holds the lock.
func Acquire(dir string) (*Lock, error) {
	path := dir + string(os.PathSeparator) + LockFileName
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("dirlock: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyOpen
		}
		return nil, fmt.Errorf("dirlock: flock %s: %w", path, err)
	}

	return &Lock{f: f}, nil
}

// Close releases the lock and closes the underlying file descriptor.
func (l *Lock) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("dirlock: unlock: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("dirlock: close: %w", closeErr)
	}
	return nil
}
