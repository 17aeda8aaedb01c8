// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package deviceio

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// blkDiscard is the BLKDISCARD ioctl number for TRIM/discard on block
// devices.
const blkDiscard = 0x1277

// Lock gains exclusive access to the device via flock.
func (h *Handle) Lock() error {
	if err := syscall.Flock(int(h.f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return fmt.Errorf("lock %s: %w", h.path, err)
	}
	h.locked = true
	return nil
}

// Dismount invalidates the kernel's cached partition table for the
// device so direct writes are authoritative. BLKRRPART is Linux's
// closest analogue to Windows' FSCTL_DISMOUNT_VOLUME; it only applies
// to block devices, so ENOTTY against a regular file (or any other
// ioctl failure) is swallowed rather than aborting the wipe.
func (h *Handle) Dismount() error {
	const blkrrpart = 0x125f
	_, _, _ = unix.Syscall(unix.SYS_IOCTL, h.f.Fd(), uintptr(blkrrpart), 0)
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

// Size returns the device's addressable byte count, trying
// BLKGETSIZE64 first (block devices) and falling back to Stat for
// regular files.
func (h *Handle) Size() (int64, error) {
	var size int64
	// #nosec G103 -- unsafe.Pointer required for ioctl syscall to pass the result out
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, h.f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno == 0 {
		return size, nil
	}

	stat, err := h.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", h.path, err)
	}
	return stat.Size(), nil
}

// Discard issues a BLKDISCARD/TRIM for the full device extent. The
// orchestrator calls this as a best-effort hint before the overwrite
// passes (the passes remain the attested sanitization); flash
// controllers may use it to release over-provisioned blocks the
// passes cannot reach. ENOTTY against a regular file surfaces like
// any other failure and the caller moves on.
func (h *Handle) Discard(size int64) error {
	if size <= 0 {
		return fmt.Errorf("discard %s: invalid size %d", h.path, size)
	}
	discardRange := [2]uint64{0, uint64(size)}
	// #nosec G103 -- unsafe.Pointer required for ioctl syscall to pass array to kernel
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, h.f.Fd(), uintptr(blkDiscard), uintptr(unsafe.Pointer(&discardRange[0])))
	if errno != 0 {
		return fmt.Errorf("discard %s: %w", h.path, errno)
	}
	return nil
}
