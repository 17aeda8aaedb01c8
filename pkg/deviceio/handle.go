// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package deviceio implements the low-level device I/O primitives the
// orchestrator drives: acquire, lock, dismount, seek, block read/write,
// flush, unlock, close. Locking, dismounting, and size discovery are
// platform-specific (see handle_linux.go, handle_windows.go,
// handle_darwin.go); seek/read/write/flush/close work the same way on
// every platform since *os.File already abstracts them.
package deviceio

import (
	"errors"
	"fmt"
	"os"
)

// ErrShortReadWrite indicates a read or write returned fewer bytes
// than requested with no error, before EOF. Fatal, never retried.
var ErrShortReadWrite = errors.New("short read/write")

// Handle is an exclusively-owned, open device or backing file. Every
// Acquire is expected to be paired with a guaranteed Close on every
// exit path; callers typically arrange that with defer.
type Handle struct {
	f        *os.File
	path     string
	writable bool
	locked   bool
}

// Acquire opens path for exclusive use. When writable is true the
// handle is opened read-write and the caller is expected to call
// Lock/Dismount before performing any writes.
func Acquire(path string, writable bool) (*Handle, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}

	f, err := os.OpenFile(path, flag, 0) // #nosec G304 -- device path validated by caller before Acquire
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", path, err)
	}

	return &Handle{f: f, path: path, writable: writable}, nil
}

// Seek repositions the handle to an absolute offset from the start of
// the device.
func (h *Handle) Seek(offset int64) error {
	if _, err := h.f.Seek(offset, 0); err != nil {
		return fmt.Errorf("seek %s: %w", h.path, err)
	}
	return nil
}

// ReadBlock reads up to len(buf) bytes, returning the number of bytes
// read. The count is reported verbatim alongside any error so callers
// can see exactly how far a partial read got.
func (h *Handle) ReadBlock(buf []byte) (int, error) {
	n, err := h.f.Read(buf)
	if err != nil {
		return n, fmt.Errorf("read %s: %w", h.path, err)
	}
	return n, nil
}

// WriteBlock writes buf in full, returning the number of bytes
// written. A short write is fatal.
func (h *Handle) WriteBlock(buf []byte) (int, error) {
	n, err := h.f.Write(buf)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", h.path, err)
	}
	if n != len(buf) {
		return n, fmt.Errorf("write %s: %w: wrote %d of %d bytes", h.path, ErrShortReadWrite, n, len(buf))
	}
	return n, nil
}

// Flush forces pending writes to non-volatile media.
func (h *Handle) Flush() error {
	if err := h.f.Sync(); err != nil {
		return fmt.Errorf("flush %s: %w", h.path, err)
	}
	return nil
}

// Close releases the underlying file descriptor. Unlock should be
// called first if the handle was locked; Close does not implicitly
// unlock on every platform.
func (h *Handle) Close() error {
	if err := h.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", h.path, err)
	}
	return nil
}

// Path returns the device path this handle was acquired for.
func (h *Handle) Path() string { return h.path }
