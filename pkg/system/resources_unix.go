//go:build !windows

package system

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func diskUsage(dir string) (DiskUsage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return DiskUsage{}, fmt.Errorf("failed to get disk statistics: %w", err)
	}
	bsize := uint64(stat.Bsize)
	return DiskUsage{
		Total:     uint64(stat.Blocks) * bsize,
		Free:      uint64(stat.Bfree) * bsize,
		Available: uint64(stat.Bavail) * bsize,
	}, nil
}
