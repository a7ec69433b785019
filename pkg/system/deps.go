// Package system inspects the host: the tools installerx shells out to
// and the space left for staging packages.
package system

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Tool is a host executable installerx depends on
type Tool struct {
	Name     string
	Required bool
	UsedBy   string
	// Hint tells the user how to get the tool
	Hint        string
	VersionArgs []string
}

// Tools lists what the installer can use. adb is mandatory; aapt2 and aapt
// back up the built-in manifest parser.
var Tools = []Tool{
	{
		Name:        "adb",
		Required:    true,
		UsedBy:      "install, uninstall, devices",
		Hint:        "install Android SDK Platform-Tools and add it to PATH, or set adb.path",
		VersionArgs: []string{"version"},
	},
	{
		Name:        "aapt2",
		UsedBy:      "manifest parsing fallback",
		Hint:        "install Android SDK Build-Tools, or set installer.aapt_path",
		VersionArgs: []string{"version"},
	},
	{
		Name:        "aapt",
		UsedBy:      "manifest parsing fallback",
		Hint:        "install Android SDK Build-Tools, or set installer.aapt_path",
		VersionArgs: []string{"version"},
	},
}

// ToolStatus is the result of looking for one tool
type ToolStatus struct {
	Tool      Tool   `json:"-" yaml:"-"`
	Name      string `json:"name" yaml:"name"`
	Required  bool   `json:"required" yaml:"required"`
	Available bool   `json:"available" yaml:"available"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Checker finds tools on the host
type Checker struct {
	// Paths overrides where a tool is looked up, keyed by tool name
	Paths    map[string]string
	LookPath func(file string) (string, error)
	Run      func(ctx context.Context, name string, args ...string) ([]byte, error)
	Timeout  time.Duration
}

// NewChecker creates a checker using PATH and the given overrides
func NewChecker(paths map[string]string) *Checker {
	return &Checker{
		Paths:    paths,
		LookPath: exec.LookPath,
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		Timeout: 5 * time.Second,
	}
}

// Check looks for one tool and asks it for its version
func (c *Checker) Check(ctx context.Context, t Tool) ToolStatus {
	status := ToolStatus{Tool: t, Name: t.Name, Required: t.Required}

	name := t.Name
	if p := c.Paths[t.Name]; p != "" {
		name = p
	}
	path, err := c.LookPath(name)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Path = path
	status.Available = true

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	output, err := c.Run(ctx, path, t.VersionArgs...)
	if err != nil {
		status.Error = "version check failed: " + err.Error()
		return status
	}
	status.Version = firstLine(string(output))
	return status
}

// CheckAll checks every tool in Tools order
func (c *Checker) CheckAll(ctx context.Context) []ToolStatus {
	out := make([]ToolStatus, len(Tools))
	for i, t := range Tools {
		out[i] = c.Check(ctx, t)
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
