// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package device

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sys/windows"
)

// psDisk mirrors the fields this backend needs from Get-Disk's JSON
// output. One batched PowerShell query covers every disk, avoiding a
// subprocess per device.
type psDisk struct {
	Number       int    `json:"Number"`
	FriendlyName string `json:"FriendlyName"`
	Model        string `json:"Model"`
	SerialNumber string `json:"SerialNumber"`
	Size         int64  `json:"Size"`
	BusType      string `json:"BusType"`
}

const listDisksScript = `Get-Disk | Select-Object Number, FriendlyName, Model, SerialNumber, Size, BusType | ConvertTo-Json -Compress`

// platformRequireElevated checks whether the current process token is
// elevated; raw disk access fails without it.
func platformRequireElevated() error {
	if !windows.GetCurrentProcessToken().IsElevated() {
		return ErrNotElevated
	}
	return nil
}

// platformListRawDisks shells out to PowerShell once and parses the
// batched JSON result, assigning the disk's own Number as its index so
// \\.\PhysicalDriveN corresponds directly to the native Windows path.
func platformListRawDisks() ([]rawDisk, error) {
	out, err := exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", listDisksScript).Output()
	if err != nil {
		return nil, fmt.Errorf("Get-Disk: %w", err)
	}

	disks, err := parsePSDisks(out)
	if err != nil {
		return nil, fmt.Errorf("parse Get-Disk output: %w", err)
	}

	result := make([]rawDisk, 0, len(disks))
	for _, d := range disks {
		result = append(result, rawDisk{
			Index:         d.Number,
			NativePath:    deviceIDFor(d.Number),
			Model:         strings.TrimSpace(d.Model),
			Serial:        strings.TrimSpace(d.SerialNumber),
			InterfaceType: strings.ToUpper(strings.TrimSpace(d.BusType)),
			SizeBytes:     d.Size,
		})
	}
	return result, nil
}

// parsePSDisks tolerates PowerShell's single-object-vs-array quirk:
// ConvertTo-Json emits a bare object instead of a one-element array
// when exactly one disk matches the filter.
func parsePSDisks(out []byte) ([]psDisk, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var disks []psDisk
		if err := json.Unmarshal([]byte(trimmed), &disks); err != nil {
			return nil, err
		}
		return disks, nil
	}

	var single psDisk
	if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
		return nil, err
	}
	return []psDisk{single}, nil
}

const systemDiskScript = `
$nums = @()
Get-Partition | Where-Object { $_.IsBoot -or $_.DriveLetter -eq 'C' } | ForEach-Object { $nums += $_.DiskNumber }
$nums | Select-Object -Unique | ConvertTo-Json -Compress
`

// platformSystemDriveIndices asks PowerShell for every disk number
// hosting a boot partition or the C: drive. Any failure of the
// PowerShell call or of JSON parsing propagates so the enumerator
// fails closed.
func platformSystemDriveIndices() (map[int]bool, error) {
	out, err := exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", systemDiskScript).Output()
	if err != nil {
		return nil, fmt.Errorf("Get-Partition: %w", err)
	}

	trimmed := strings.TrimSpace(string(out))
	indices := map[int]bool{}
	if trimmed == "" || trimmed == "null" {
		return indices, nil
	}

	if trimmed[0] == '[' {
		var nums []int
		if err := json.Unmarshal([]byte(trimmed), &nums); err != nil {
			return nil, fmt.Errorf("parse system disk numbers: %w", err)
		}
		for _, n := range nums {
			indices[n] = true
		}
		return indices, nil
	}

	var single int
	if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
		return nil, fmt.Errorf("parse system disk number: %w", err)
	}
	indices[single] = true
	return indices, nil
}

// NativePath resolves a validated device's canonical identifier back
// to the real device path. On Windows the two are already identical.
func NativePath(deviceID string) (string, error) {
	var index int
	if _, err := fmt.Sscanf(deviceID, `\\.\PhysicalDrive%d`, &index); err != nil {
		return "", fmt.Errorf("parse device id %q: %w", deviceID, err)
	}
	return deviceID, nil
}
