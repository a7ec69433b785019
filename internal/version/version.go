// Package version carries the build identity set through -ldflags
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// BuildInfo is the machine readable form of Info
type BuildInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the build identity of the running binary
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Info returns version information
func Info() string {
	b := Get()
	return fmt.Sprintf("installerx %s\nCommit: %s\nBuilt: %s\nGo: %s\nOS/Arch: %s",
		b.Version, b.Commit, b.BuildDate, b.GoVersion, b.Platform)
}

// Short returns short version string
func Short() string {
	return Version
}
