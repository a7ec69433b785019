package client

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/wxxsfxyzm/installerx/pkg/apk"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

var (
	dumpsysVersionCode = regexp.MustCompile(`versionCode=(\d+)`)
	dumpsysMinSDK      = regexp.MustCompile(`minSdk=(\d+)`)
	dumpsysTargetSDK   = regexp.MustCompile(`targetSdk=(\d+)`)
	dumpsysArchived    = regexp.MustCompile(`\b(?:isArchived|archived)=true\b`)
)

// InstalledApp reports the installed version of packageName, or nil when
// the device does not have it. The signature hash is read from the pulled
// base APK; failing to get it leaves the hash empty.
func (a *ADB) InstalledApp(ctx context.Context, packageName string) (*models.InstalledAppInfo, error) {
	output, err := a.shell(ctx, "dumpsys", "package", packageName)
	if err != nil {
		return nil, fmt.Errorf("failed to get package info: %w", err)
	}

	info := parseDumpsys(string(output), packageName)
	if info == nil {
		return nil, nil
	}

	hash, err := a.signatureHash(ctx, packageName)
	if err != nil {
		a.logger.Debug("No signature hash for installed %s: %v", packageName, err)
	} else {
		info.SignatureHash = hash
	}
	return info, nil
}

// parseDumpsys reads the version block of `dumpsys package <name>`. Only
// the section of the requested package counts; dumpsys also lists
// packages that merely reference it.
func parseDumpsys(output, packageName string) *models.InstalledAppInfo {
	header := "Package [" + packageName + "]"
	idx := strings.Index(output, header)
	if idx < 0 {
		return nil
	}
	section := output[idx+len(header):]
	if next := strings.Index(section, "Package ["); next >= 0 {
		section = section[:next]
	}

	info := &models.InstalledAppInfo{PackageName: packageName}
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "versionName="):
			info.VersionName = strings.TrimPrefix(line, "versionName=")
		case strings.HasPrefix(line, "versionCode="):
			if m := dumpsysVersionCode.FindStringSubmatch(line); m != nil {
				info.VersionCode, _ = strconv.ParseInt(m[1], 10, 64)
			}
			if m := dumpsysMinSDK.FindStringSubmatch(line); m != nil {
				info.MinSDK, _ = strconv.Atoi(m[1])
			}
			if m := dumpsysTargetSDK.FindStringSubmatch(line); m != nil {
				info.TargetSDK, _ = strconv.Atoi(m[1])
			}
		}
	}
	info.IsArchived = dumpsysArchived.MatchString(section)
	return info
}

// signatureHash pulls the installed base APK and hashes its v1 signer
func (a *ADB) signatureHash(ctx context.Context, packageName string) (string, error) {
	output, err := a.shell(ctx, "pm", "path", packageName)
	if err != nil {
		return "", fmt.Errorf("pm path: %w", err)
	}
	var remote string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if p, ok := strings.CutPrefix(line, "package:"); ok {
			if remote == "" || strings.HasSuffix(p, "/base.apk") {
				remote = p
			}
		}
	}
	if remote == "" {
		return "", fmt.Errorf("no path reported for %s", packageName)
	}

	if a.tempDir != "" {
		if err := os.MkdirAll(a.tempDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create temp directory: %w", err)
		}
	}
	dir, err := os.MkdirTemp(a.tempDir, "installed-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, "base.apk")
	if output, err := a.adb(ctx, "pull", remote, local); err != nil {
		return "", fmt.Errorf("adb pull failed: %w, output: %s", err, strings.TrimSpace(string(output)))
	}

	reader, err := zip.OpenReader(local)
	if err != nil {
		return "", fmt.Errorf("pulled APK is not a zip: %w", err)
	}
	defer reader.Close()
	return apk.SignatureHash(&reader.Reader)
}
