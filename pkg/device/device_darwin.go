// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

//go:build darwin

package device

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// This backend queries `system_profiler SPUSBDataType -json`, which
// nests attached USB devices and their backing BSD disks in one call,
// avoiding a subprocess per device.
type spUSBRoot struct {
	Devices []spUSBItem `json:"SPUSBDataType"`
}

type spUSBItem struct {
	Name         string      `json:"_name"`
	SerialNum    string      `json:"serial_num"`
	Manufacturer string      `json:"manufacturer_id"`
	Media        []spMedia   `json:"Media"`
	Items        []spUSBItem `json:"_items"`
}

type spMedia struct {
	Name        string `json:"_name"`
	BSDName     string `json:"bsd_name"`
	SizeBytes   int64  `json:"size_in_bytes"`
	RemovableMM string `json:"removable_media"`
}

var diskNumberPattern = regexp.MustCompile(`^disk(\d+)`)

// platformRequireElevated checks for root. macOS raw disk access
// generally requires elevated privileges just like Linux.
func platformRequireElevated() error {
	out, err := exec.Command("id", "-u").Output()
	if err != nil {
		return fmt.Errorf("id -u: %w", err)
	}
	if strings.TrimSpace(string(out)) != "0" {
		return ErrNotElevated
	}
	return nil
}

// platformListRawDisks walks the USB device tree system_profiler
// reports and collects one rawDisk per whole BSD disk it finds
// backing removable media.
func platformListRawDisks() ([]rawDisk, error) {
	out, err := exec.Command("system_profiler", "SPUSBDataType", "-json").Output()
	if err != nil {
		return nil, fmt.Errorf("system_profiler: %w", err)
	}

	var root spUSBRoot
	if err := json.Unmarshal(out, &root); err != nil {
		return nil, fmt.Errorf("parse system_profiler output: %w", err)
	}

	seen := map[int]bool{}
	var disks []rawDisk
	var walk func(items []spUSBItem)
	walk = func(items []spUSBItem) {
		for _, item := range items {
			for _, m := range item.Media {
				match := diskNumberPattern.FindStringSubmatch(m.BSDName)
				if match == nil {
					continue
				}
				var index int
				fmt.Sscanf(match[1], "%d", &index)
				if seen[index] {
					continue
				}
				seen[index] = true
				disks = append(disks, rawDisk{
					Index:         index,
					NativePath:    "/dev/" + match[0],
					Model:         item.Name,
					Serial:        item.SerialNum,
					InterfaceType: "USB",
					SizeBytes:     m.SizeBytes,
				})
			}
			walk(item.Items)
		}
	}
	walk(root.Devices)

	return disks, nil
}

var mountRootPattern = regexp.MustCompile(`^(/dev/disk\d+)\S*\s+on\s+/\s`)

// platformSystemDriveIndices parses `mount` output to find the BSD
// whole disk backing the root filesystem. Any failure propagates so
// the enumerator fails closed.
func platformSystemDriveIndices() (map[int]bool, error) {
	out, err := exec.Command("mount").Output()
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		match := mountRootPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		diskMatch := diskNumberPattern.FindStringSubmatch(strings.TrimPrefix(match[1], "/dev/"))
		if diskMatch == nil {
			continue
		}
		var index int
		fmt.Sscanf(diskMatch[1], "%d", &index)
		return map[int]bool{index: true}, nil
	}

	return nil, fmt.Errorf("could not locate root filesystem's backing disk in mount output")
}

// NativePath resolves a validated device's canonical identifier back
// to the real /dev/diskN path.
func NativePath(deviceID string) (string, error) {
	var index int
	if _, err := fmt.Sscanf(deviceID, `\\.\PhysicalDrive%d`, &index); err != nil {
		return "", fmt.Errorf("parse device id %q: %w", deviceID, err)
	}
	return fmt.Sprintf("/dev/disk%d", index), nil
}
