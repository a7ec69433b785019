package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// packageTags are the logcat tags of the install pipeline
var packageTags = []string{"PackageManager", "PackageInstaller", "InstallPackageHelper", "PackageInstallerSession"}

// LogCaptureOptions defines options for capturing device logs
type LogCaptureOptions struct {
	// PackageName narrows the capture to lines mentioning the package
	PackageName string
	Level       string
	OutputPath  string
}

// LogCaptureResult describes the outcome of a log capture
type LogCaptureResult struct {
	DeviceID   string        `json:"device_id" yaml:"device_id"`
	OutputPath string        `json:"output_path" yaml:"output_path"`
	Level      string        `json:"level" yaml:"level"`
	CapturedAt time.Time     `json:"captured_at" yaml:"captured_at"`
	Lines      int           `json:"lines" yaml:"lines"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// CaptureLogs dumps the package manager logcat buffer to disk, used to
// diagnose an install failure after the fact
func (a *ADB) CaptureLogs(ctx context.Context, opts LogCaptureOptions) (*LogCaptureResult, error) {
	level := strings.ToUpper(strings.TrimSpace(opts.Level))
	if level == "" {
		level = "I"
	}
	if !strings.Contains("VDIWEF", level) || len(level) != 1 {
		return nil, fmt.Errorf("unsupported log level: %s", level)
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		sanitized := strings.ReplaceAll(a.serial, ":", "_")
		if sanitized == "" {
			sanitized = "device"
		}
		outputPath = filepath.Join("logs", fmt.Sprintf("%s-%s.log", sanitized, time.Now().Format("20060102-150405")))
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare log directory: %w", err)
	}

	start := time.Now()
	args := []string{"logcat", "-d", "-s"}
	for _, tag := range packageTags {
		args = append(args, fmt.Sprintf("%s:%s", tag, level))
	}
	output, err := a.adb(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to capture logs: %w - %s", err, strings.TrimSpace(string(output)))
	}

	var lines []string
	if trimmed := strings.TrimRight(string(output), "\n"); trimmed != "" {
		lines = strings.Split(trimmed, "\n")
	}
	if opts.PackageName != "" {
		var kept []string
		for _, line := range lines {
			if strings.Contains(line, opts.PackageName) {
				kept = append(kept, line)
			}
		}
		lines = kept
	}
	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write logs: %w", err)
	}

	return &LogCaptureResult{
		DeviceID:   a.serial,
		OutputPath: outputPath,
		Level:      level,
		CapturedAt: time.Now(),
		Lines:      len(lines),
		Duration:   time.Since(start),
	}, nil
}
