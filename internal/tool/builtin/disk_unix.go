// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

//go:build !windows

package builtin

import "golang.org/x/sys/unix"

// diskUsage reports byte counts for the filesystem holding path.
func diskUsage(path string) (total, used, free uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, 0, err
	}

	total = st.Blocks * uint64(st.Bsize)
	free = st.Bavail * uint64(st.Bsize)
	used = total - st.Bfree*uint64(st.Bsize)
	return total, used, free, nil
}
