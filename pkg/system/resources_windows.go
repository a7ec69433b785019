//go:build windows

package system

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func diskUsage(dir string) (DiskUsage, error) {
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return DiskUsage{}, err
	}
	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &available, &total, &free); err != nil {
		return DiskUsage{}, fmt.Errorf("GetDiskFreeSpaceEx failed: %w", err)
	}
	return DiskUsage{Total: total, Free: free, Available: available}, nil
}
