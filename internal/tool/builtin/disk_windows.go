// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

//go:build windows

package builtin

import "golang.org/x/sys/windows"

// diskUsage reports byte counts for the volume holding path.
func diskUsage(path string) (total, used, free uint64, err error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, 0, err
	}

	var avail, totalBytes, freeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(p, &avail, &totalBytes, &freeBytes); err != nil {
		return 0, 0, 0, err
	}
	return totalBytes, totalBytes - freeBytes, avail, nil
}
