package system

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DiskUsage describes the filesystem holding a path
type DiskUsage struct {
	Path      string `json:"path" yaml:"path"`
	Total     uint64 `json:"total" yaml:"total"`
	Free      uint64 `json:"free" yaml:"free"`
	Available uint64 `json:"available" yaml:"available"`
}

// UsedPercent returns the used share of the filesystem
func (d DiskUsage) UsedPercent() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Total-d.Free) / float64(d.Total) * 100
}

// DiskUsageOf reports on the filesystem of path. A path that does not
// exist yet, such as a staging directory, is measured at its closest
// existing parent.
func DiskUsageOf(path string) (DiskUsage, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("failed to get absolute path: %w", err)
	}
	dir := abs
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			return DiskUsage{}, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return DiskUsage{}, fmt.Errorf("no existing parent for %s", abs)
		}
		dir = parent
	}

	usage, err := diskUsage(dir)
	if err != nil {
		return DiskUsage{}, err
	}
	usage.Path = abs
	return usage, nil
}

// CheckFreeSpace fails when less than min bytes are available at path
func CheckFreeSpace(path string, min uint64) error {
	usage, err := DiskUsageOf(path)
	if err != nil {
		return err
	}
	if usage.Available < min {
		return fmt.Errorf("only %s available at %s, need %s", FormatBytes(usage.Available), usage.Path, FormatBytes(min))
	}
	return nil
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
