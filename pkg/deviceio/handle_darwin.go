// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

//go:build darwin

package deviceio

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// dkiocGetBlockCount/dkiocGetBlockSize are the macOS disk ioctls used
// to size a raw block device, paralleling the Linux BLKGETSIZE64
// backend with the platform's own geometry ioctls.
const (
	dkiocGetBlockCount = 0x40086419
	dkiocGetBlockSize  = 0x40046418
)

// Lock gains exclusive access via flock, same mechanism as the Linux
// backend (BSD flock semantics are shared).
func (h *Handle) Lock() error {
	if err := syscall.Flock(int(h.f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return fmt.Errorf("lock %s: %w", h.path, err)
	}
	h.locked = true
	return nil
}

// Dismount is a best-effort no-op on macOS: unlike Linux's BLKRRPART,
// there is no ioctl to invalidate a raw disk's cached filesystem
// metadata from an already-open file descriptor; diskutil unmount is
// the OS-level equivalent and is expected to have run before Acquire.
func (h *Handle) Dismount() error {
	return nil
}

// Unlock releases the flock acquired by Lock.
func (h *Handle) Unlock() error {
	if !h.locked {
		return nil
	}
	if err := syscall.Flock(int(h.f.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("unlock %s: %w", h.path, err)
	}
	h.locked = false
	return nil
}

// Discard reports unsupported: macOS exposes no TRIM ioctl for an
// already-open raw disk descriptor. Callers treat discard as a
// best-effort hint, so this simply declines.
func (h *Handle) Discard(size int64) error {
	return fmt.Errorf("discard %s: %w", h.path, errors.ErrUnsupported)
}

// Size returns the device's addressable byte count via the disk
// geometry ioctls, falling back to Stat for regular files.
func (h *Handle) Size() (int64, error) {
	var blockCount uint64
	// #nosec G103 -- unsafe.Pointer required for ioctl syscall to pass the result out
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, h.f.Fd(), uintptr(dkiocGetBlockCount), uintptr(unsafe.Pointer(&blockCount)))
	if errno != 0 {
		stat, err := h.f.Stat()
		if err != nil {
			return 0, fmt.Errorf("size %s: %w", h.path, err)
		}
		return stat.Size(), nil
	}

	var blockSize uint32
	// #nosec G103 -- unsafe.Pointer required for ioctl syscall to pass the result out
	_, _, errno = unix.Syscall(unix.SYS_IOCTL, h.f.Fd(), uintptr(dkiocGetBlockSize), uintptr(unsafe.Pointer(&blockSize)))
	if errno != 0 {
		return 0, fmt.Errorf("size %s: %w", h.path, errno)
	}

	return int64(blockCount) * int64(blockSize), nil
}
