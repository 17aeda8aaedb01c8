// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func newTestEnumerator(disks []rawDisk, systemIndices map[int]bool, elevated bool) *Enumerator {
	return &Enumerator{
		log:      zerolog.Nop(),
		security: zerolog.Nop(),
		listRawDisks: func() ([]rawDisk, error) {
			return disks, nil
		},
		systemDriveIndices: func() (map[int]bool, error) {
			return systemIndices, nil
		},
		requireElevated: func() error {
			if !elevated {
				return ErrNotElevated
			}
			return nil
		},
	}
}

func TestListValidFiltersSystemDrive(t *testing.T) {
	disks := []rawDisk{
		{Index: 0, NativePath: "/dev/sda", Model: "OS Disk", Serial: "S1", InterfaceType: "USB", SizeBytes: 1 << 30},
		{Index: 1, NativePath: "/dev/sdb", Model: "Backup", Serial: "S2", InterfaceType: "USB", SizeBytes: 1 << 30},
	}
	e := newTestEnumerator(disks, map[int]bool{0: true}, true)

	got, err := e.ListValid()
	if err != nil {
		t.Fatalf("ListValid: %v", err)
	}
	if len(got) != 1 || got[0].DeviceID != deviceIDFor(1) {
		t.Fatalf("ListValid() = %+v, want only index 1", got)
	}
}

func TestListValidFiltersNonUSB(t *testing.T) {
	disks := []rawDisk{
		{Index: 0, NativePath: "/dev/sda", Model: "Internal", Serial: "S1", InterfaceType: "SATA", SizeBytes: 1 << 30},
	}
	e := newTestEnumerator(disks, map[int]bool{}, true)

	got, err := e.ListValid()
	if err != nil {
		t.Fatalf("ListValid: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ListValid() = %+v, want none", got)
	}
}

func TestListValidFiltersZeroSizeAndMissingSerial(t *testing.T) {
	disks := []rawDisk{
		{Index: 0, NativePath: "/dev/sda", Model: "A", Serial: "", InterfaceType: "USB", SizeBytes: 1 << 30},
		{Index: 1, NativePath: "/dev/sdb", Model: "B", Serial: "S2", InterfaceType: "USB", SizeBytes: 0},
	}
	e := newTestEnumerator(disks, map[int]bool{}, true)

	got, err := e.ListValid()
	if err != nil {
		t.Fatalf("ListValid: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ListValid() = %+v, want none", got)
	}
}

func TestListValidEveryResultSatisfiesInvariant(t *testing.T) {
	disks := []rawDisk{
		{Index: 5, NativePath: "/dev/sdc", Model: "USB Stick", Serial: "ABC123", InterfaceType: "USB", SizeBytes: 64 << 20},
	}
	e := newTestEnumerator(disks, map[int]bool{}, true)

	got, err := e.ListValid()
	if err != nil {
		t.Fatalf("ListValid: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one device, got %d", len(got))
	}
	d := got[0]
	if d.SerialNumber == "" || d.SizeBytes <= 0 || d.IsSystemDrive {
		t.Fatalf("ListValid invariant violated: %+v", d)
	}
}

func TestListValidRequiresElevation(t *testing.T) {
	e := newTestEnumerator(nil, map[int]bool{}, false)

	_, err := e.ListValid()
	if !errors.Is(err, ErrNotElevated) {
		t.Fatalf("ListValid() error = %v, want ErrNotElevated", err)
	}
}

func TestListValidFailsClosedOnSystemDriveError(t *testing.T) {
	e := newTestEnumerator(nil, nil, true)
	e.systemDriveIndices = func() (map[int]bool, error) {
		return nil, errors.New("wmi unavailable")
	}

	_, err := e.ListValid()
	if !errors.Is(err, ErrSystemDriveDetermination) {
		t.Fatalf("ListValid() error = %v, want ErrSystemDriveDetermination", err)
	}
}

func TestValidateForWipeRejectsSwappedDevice(t *testing.T) {
	disks := []rawDisk{
		{Index: 0, NativePath: "/dev/sda", Model: "USB Stick", Serial: "ABC", InterfaceType: "USB", SizeBytes: 1 << 20},
	}
	e := newTestEnumerator(disks, map[int]bool{}, true)

	if _, err := e.ValidateForWipe(deviceIDFor(1)); !errors.Is(err, ErrDeviceNotValid) {
		t.Fatalf("ValidateForWipe(missing) error = %v, want ErrDeviceNotValid", err)
	}

	got, err := e.ValidateForWipe(deviceIDFor(0))
	if err != nil {
		t.Fatalf("ValidateForWipe(present): %v", err)
	}
	if got.SerialNumber != "ABC" {
		t.Fatalf("ValidateForWipe returned %+v, want serial ABC", got)
	}
}

func TestSizeGB(t *testing.T) {
	d := ValidatedDevice{SizeBytes: 2 * 1024 * 1024 * 1024}
	if got := d.SizeGB(); got != 2.0 {
		t.Fatalf("SizeGB() = %v, want 2.0", got)
	}
}
