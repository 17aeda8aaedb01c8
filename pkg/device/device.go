// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package device implements the device validation and safety gate: it
// enumerates attached block devices, filters out anything that is not
// a removable, serial-bearing, positively-sized, non-system drive, and
// exposes a re-validation entry point that must run immediately before
// a wipe begins. Platform-specific listing lives in device_linux.go,
// device_windows.go, and device_darwin.go; this file holds the
// platform-independent filtering and fail-closed error semantics.
package device

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/ecowipe/core/pkg/validate"
)

// Sentinel errors, checked with errors.Is by callers.
var (
	// ErrSystemDriveDetermination signals the enumerator could not
	// reliably tell which disks host the running OS. This must
	// propagate rather than silently returning an empty or partial
	// list.
	ErrSystemDriveDetermination = errors.New("unable to determine system drive indices")

	// ErrNotElevated signals the process lacks the administrator/root
	// privileges device enumeration requires.
	ErrNotElevated = errors.New("administrator or root privileges are required for device enumeration")

	// ErrDeviceNotValid signals a device failed re-validation
	// immediately before a wipe: it may have been removed, altered,
	// or reclassified as a system drive since it was first listed.
	ErrDeviceNotValid = errors.New("device is not valid for wiping or is no longer present")
)

// ValidatedDevice is an immutable record of a device that has passed
// every safety check. A ValidatedDevice can only ever be constructed
// with IsSystemDrive/IsBootDrive false: a drive failing those checks
// is filtered out, never wrapped.
type ValidatedDevice struct {
	DeviceID      string
	Model         string
	SerialNumber  string
	SizeBytes     int64
	InterfaceType string
	IsSystemDrive bool
	IsBootDrive   bool
}

// SizeGB is a human-facing convenience accessor, not part of the
// certificate record. Mirrors the original's ValidatedDevice.size_gb.
func (d ValidatedDevice) SizeGB() float64 {
	return math.Round(float64(d.SizeBytes)/(1024*1024*1024)*100) / 100
}

// allowedInterface is the only bus type the safety gate accepts as
// removable external storage.
const allowedInterface = "USB"

// rawDisk is the platform-neutral shape a backend reports before the
// safety filter runs.
type rawDisk struct {
	Index         int
	NativePath    string
	Model         string
	Serial        string
	InterfaceType string
	SizeBytes     int64
}

// Enumerator implements the device validation and safety gate. Its
// three platform hooks are ordinary function fields rather than an
// interface boundary, so tests can substitute fakes without needing a
// real block device or admin rights.
type Enumerator struct {
	log      zerolog.Logger
	security zerolog.Logger

	listRawDisks       func() ([]rawDisk, error)
	systemDriveIndices func() (map[int]bool, error)
	requireElevated    func() error
}

// New builds an Enumerator wired to the current platform's backend.
func New(log zerolog.Logger) *Enumerator {
	return &Enumerator{
		log:                log.With().Str("component", "device").Logger(),
		security:           log.With().Str("component", "security").Logger(),
		listRawDisks:       platformListRawDisks,
		systemDriveIndices: platformSystemDriveIndices,
		requireElevated:    platformRequireElevated,
	}
}

// deviceIDFor renders a disk index as the canonical device identifier,
// independent of the backend's native path.
func deviceIDFor(index int) string {
	return fmt.Sprintf(`\\.\PhysicalDrive%d`, index)
}

// RequireElevated reports whether the current process holds the
// privileges device enumeration requires.
func (e *Enumerator) RequireElevated() error {
	return e.requireElevated()
}

// ListValid enumerates every attached device and returns only those
// that pass every safety rule. A failure determining the system
// drive set is fail-closed: it propagates rather than returning a
// partial or empty list that could be mistaken for "no valid devices".
func (e *Enumerator) ListValid() ([]ValidatedDevice, error) {
	if err := e.requireElevated(); err != nil {
		e.security.Warn().Msg("device enumeration attempted without required privileges")
		return nil, err
	}

	systemIndices, err := e.systemDriveIndices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystemDriveDetermination, err)
	}

	disks, err := e.listRawDisks()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	var valid []ValidatedDevice
	for _, disk := range disks {
		if systemIndices[disk.Index] {
			e.security.Warn().Int("index", disk.Index).Msg("system drive detected as candidate; blocking")
			continue
		}
		if disk.InterfaceType != allowedInterface {
			e.log.Debug().Str("path", disk.NativePath).Str("interface", disk.InterfaceType).Msg("skipping non-removable interface")
			continue
		}
		if disk.SizeBytes <= 0 {
			e.log.Warn().Str("path", disk.NativePath).Int64("size_bytes", disk.SizeBytes).Msg("skipping device with invalid size")
			continue
		}
		if disk.Serial == "" {
			e.log.Warn().Str("path", disk.NativePath).Msg("skipping device missing serial number")
			continue
		}

		id := deviceIDFor(disk.Index)
		if err := validate.DevicePath(id); err != nil {
			e.log.Error().Str("path", disk.NativePath).Err(err).Msg("skipping device with malformed id")
			continue
		}

		valid = append(valid, ValidatedDevice{
			DeviceID:      id,
			Model:         disk.Model,
			SerialNumber:  disk.Serial,
			SizeBytes:     disk.SizeBytes,
			InterfaceType: disk.InterfaceType,
			IsSystemDrive: false,
			IsBootDrive:   false,
		})
		e.log.Info().Str("device_id", id).Str("model", disk.Model).Msg("validated candidate device")
	}

	return valid, nil
}

// ValidateForWipe re-runs the full enumeration and returns the
// matching device iff it is still present and still valid. This runs
// immediately before a handle is acquired, since the device set can
// change between selection and wipe start.
func (e *Enumerator) ValidateForWipe(deviceID string) (ValidatedDevice, error) {
	if err := validate.DevicePath(deviceID); err != nil {
		return ValidatedDevice{}, err
	}

	current, err := e.ListValid()
	if err != nil {
		return ValidatedDevice{}, err
	}

	for _, d := range current {
		if d.DeviceID == deviceID {
			return d, nil
		}
	}

	e.security.Warn().Str("device_id", deviceID).Msg("device failed pre-wipe re-validation")
	return ValidatedDevice{}, fmt.Errorf("%w: %s", ErrDeviceNotValid, deviceID)
}
