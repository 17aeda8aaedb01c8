// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package deviceio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

const (
	fsctlLockVolume             = 0x00090018
	fsctlUnlockVolume           = 0x0009001C
	fsctlDismountVolume         = 0x00090020
	ioctlDiskGetDriveGeometryEx = 0x000700A0

	// DISK_GEOMETRY is 24 bytes (LARGE_INTEGER Cylinders, MEDIA_TYPE,
	// TracksPerCylinder, SectorsPerTrack, BytesPerSector); DiskSize
	// follows it immediately in DISK_GEOMETRY_EX.
	diskSizeOffset = 24
)

func sendIOCTL(h windows.Handle, code uint32) error {
	var bytesReturned uint32
	err := windows.DeviceIoControl(h, code, nil, 0, nil, 0, &bytesReturned, nil)
	if err != nil {
		return err
	}
	return nil
}

// Lock gains exclusive access to the volume via FSCTL_LOCK_VOLUME; no
// other process may perform I/O until Unlock or Close.
func (h *Handle) Lock() error {
	if err := sendIOCTL(windows.Handle(h.f.Fd()), fsctlLockVolume); err != nil {
		return fmt.Errorf("lock %s: %w", h.path, err)
	}
	h.locked = true
	return nil
}

// Dismount invalidates cached filesystem metadata via
// FSCTL_DISMOUNT_VOLUME so direct writes are authoritative.
func (h *Handle) Dismount() error {
	if err := sendIOCTL(windows.Handle(h.f.Fd()), fsctlDismountVolume); err != nil {
		return fmt.Errorf("dismount %s: %w", h.path, err)
	}
	return nil
}

// Unlock releases a volume lock acquired by Lock.
func (h *Handle) Unlock() error {
	if !h.locked {
		return nil
	}
	if err := sendIOCTL(windows.Handle(h.f.Fd()), fsctlUnlockVolume); err != nil {
		return fmt.Errorf("unlock %s: %w", h.path, err)
	}
	h.locked = false
	return nil
}

// Discard reports unsupported: removable USB media on Windows rarely
// honors TRIM through the volume handle, and there is no stable FSCTL
// for it. Callers treat discard as a best-effort hint, so this simply
// declines.
func (h *Handle) Discard(size int64) error {
	return fmt.Errorf("discard %s: %w", h.path, errors.ErrUnsupported)
}

// Size returns the device's addressable byte count via
// IOCTL_DISK_GET_DRIVE_GEOMETRY_EX, falling back to Stat for regular
// files standing in for a device in tests.
func (h *Handle) Size() (int64, error) {
	buf := make([]byte, 64)
	var bytesReturned uint32
	err := windows.DeviceIoControl(
		windows.Handle(h.f.Fd()), ioctlDiskGetDriveGeometryEx,
		nil, 0, &buf[0], uint32(len(buf)), &bytesReturned, nil,
	)
	if err != nil {
		stat, statErr := h.f.Stat()
		if statErr != nil {
			return 0, fmt.Errorf("size %s: %w", h.path, statErr)
		}
		return stat.Size(), nil
	}

	if bytesReturned < diskSizeOffset+8 {
		return 0, fmt.Errorf("size %s: geometry response too short (%d bytes)", h.path, bytesReturned)
	}
	diskSize := int64(binary.LittleEndian.Uint64(buf[diskSizeOffset : diskSizeOffset+8]))
	return diskSize, nil
}
