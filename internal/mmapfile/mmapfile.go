// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mmapfile

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// File is a single OS file opened read/write and memory-mapped shared.
// The mapping is grown (and, on this platform, necessarily remapped) by
// Resize. Callers must not cache raw pointers into Data() across a call
// to Resize -- the returned slice's backing memory may move.
type File struct {
	f    *os.File
	data []byte
}

// Open opens path, which must already exist and be non-empty, and maps
// its current contents. The file is opened O_RDWR so the mapping can be
// written through.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmapfile: stat %s: %w", path, err)
	}
	if fi.Size() == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("mmapfile: %s is empty", path)
	}

	mf := &File{f: f}
	if err := mf.mmap(fi.Size()); err != nil {
		_ = f.Close()
		return nil, err
	}
	return mf, nil
}

func (mf *File) mmap(size int64) error {
	data, err := unix.Mmap(int(mf.f.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmapfile: mmap: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil {
		return fmt.Errorf("mmapfile: madvise: %w", err)
	}
	mf.data = data
	return nil
}

// Data returns the currently mapped bytes. The slice is valid until the
// next call to Resize or Close.
func (mf *File) Data() []byte {
	return mf.data
}

// Size returns the length of the current mapping in bytes.
func (mf *File) Size() int64 {
	return int64(len(mf.data))
}

// Resize truncates the underlying file to newSize and remaps it, growing
// (never shrinking below what callers have already committed to) the
// mapping. It returns false if newSize is not larger than the current
// mapping; this is not an error, it simply means there was nothing to do.
func (mf *File) Resize(newSize int64) (bool, error) {
	if newSize <= int64(len(mf.data)) {
		return false, nil
	}

	if err := mf.f.Truncate(newSize); err != nil {
		return false, fmt.Errorf("mmapfile: truncate: %w", err)
	}

	if err := unix.Munmap(mf.data); err != nil {
		return false, fmt.Errorf("mmapfile: munmap: %w", err)
	}
	mf.data = nil

	if err := mf.mmap(newSize); err != nil {
		return false, err
	}

	return true, nil
}

// Sync flushes dirty mapped pages to the backing file. The engine relies
// on the host page cache for everything else; callers that need
// durability against power loss should call Sync explicitly at their own
// commit boundaries (see spec §9's open question on fsync discipline).
func (mf *File) Sync() error {
	if len(mf.data) == 0 {
		return nil
	}
	if err := unix.Msync(mf.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("mmapfile: msync: %w", err)
	}
	return nil
}

// Close unmaps and closes the underlying file descriptor. It is safe to
// call multiple times.
func (mf *File) Close() error {
	var err error
	if mf.data != nil {
		if unmapErr := unix.Munmap(mf.data); unmapErr != nil {
			err = fmt.Errorf("mmapfile: munmap: %w", unmapErr)
		}
		mf.data = nil
	}
	if mf.f != nil {
		if closeErr := mf.f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("mmapfile: close: %w", closeErr)
		}
		mf.f = nil
	}
	return err
}

// CreateEmpty creates path (if it does not exist) and ensures it contains
// at least one byte, satisfying Open's non-empty precondition. Component
// Start()/initialize_new() calls are responsible for writing the real
// header into that first region.
func CreateEmpty(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("mmapfile: create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("mmapfile: stat %s: %w", path, err)
	}
	if fi.Size() == 0 {
		if _, err := f.Write([]byte{0}); err != nil {
			return fmt.Errorf("mmapfile: write sentinel byte: %w", err)
		}
	}
	return nil
}

// GrowTarget implements the engine-wide 3/2 growth policy: when needed
// bytes exceed the current file size, grow to max(needed*3/2, size*2).
func GrowTarget(needed, size int64) int64 {
	a := needed * 3 / 2
	b := size * 2
	if a > b {
		return a
	}
	return b
}
