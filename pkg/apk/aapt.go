package apk

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var (
	quotedName    = regexp.MustCompile(`name='([^']*)'`)
	quotedSplit   = regexp.MustCompile(`split='([^']*)'`)
	quotedCode    = regexp.MustCompile(`versionCode='([^']*)'`)
	quotedVersion = regexp.MustCompile(`versionName='([^']*)'`)
	quotedValue   = regexp.MustCompile(`'([^']*)'`)
	quotedNameVal = regexp.MustCompile(`name='([^']*)' value='([^']*)'`)
)

// AAPTParser runs `aapt2 dump badging` (or the older aapt). It backs up
// the binary parser for manifests androidbinary cannot decode.
type AAPTParser struct {
	aaptPath string

	once      sync.Once
	available bool
	run       func(name string, args ...string) ([]byte, error)
}

// NewAAPTParser creates an AAPT parser. An empty path looks up aapt2, then
// aapt, in PATH.
func NewAAPTParser(aaptPath string) *AAPTParser {
	return &AAPTParser{
		aaptPath: aaptPath,
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		},
	}
}

func (p *AAPTParser) resolve() {
	p.once.Do(func() {
		candidates := []string{p.aaptPath}
		if p.aaptPath == "" {
			candidates = []string{"aapt2", "aapt"}
		}
		for _, c := range candidates {
			if path, err := exec.LookPath(c); err == nil {
				p.aaptPath = path
				p.available = true
				return
			}
		}
	})
}

// GetParserInfo returns information about this parser
func (p *AAPTParser) GetParserInfo() ParserInfo {
	p.resolve()
	return ParserInfo{
		Name:      "AAPT",
		Available: p.available,
		Priority:  2,
	}
}

// CanParse checks if this parser can handle the given file
func (p *AAPTParser) CanParse(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".apk" || ext == ".zip"
}

// ParseManifest parses the badging output of the APK at path
func (p *AAPTParser) ParseManifest(path string) (*Manifest, error) {
	p.resolve()
	if !p.available {
		return nil, fmt.Errorf("aapt2 or aapt not found in PATH")
	}
	output, err := p.run(p.aaptPath, "dump", "badging", path)
	if err != nil {
		return nil, fmt.Errorf("aapt command failed: %w", err)
	}
	return parseBadging(string(output))
}

func submatch(re *regexp.Regexp, line string) string {
	if m := re.FindStringSubmatch(line); len(m) > 1 {
		return m[1]
	}
	return ""
}

// parseBadging parses aapt dump badging output
func parseBadging(output string) (*Manifest, error) {
	m := &Manifest{MetaData: make(map[string]string)}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "package:"):
			m.PackageName = submatch(quotedName, line)
			m.Split = submatch(quotedSplit, line)
			m.VersionName = submatch(quotedVersion, line)
			if code, err := strconv.ParseInt(submatch(quotedCode, line), 10, 64); err == nil {
				m.VersionCode = code
			}
		case strings.HasPrefix(line, "sdkVersion:"):
			m.MinSDK = submatch(quotedValue, line)
		case strings.HasPrefix(line, "targetSdkVersion:"):
			m.TargetSDK = submatch(quotedValue, line)
		case strings.HasPrefix(line, "application-label:"):
			m.Label = submatch(quotedValue, line)
		case strings.HasPrefix(line, "uses-permission:"):
			if name := submatch(quotedName, line); name != "" {
				m.Permissions = append(m.Permissions, name)
			}
		case strings.HasPrefix(line, "meta-data:"):
			if kv := quotedNameVal.FindStringSubmatch(line); len(kv) > 2 {
				m.MetaData[kv[1]] = kv[2]
			}
		case strings.HasPrefix(line, "native-code:"):
			for _, abi := range quotedValue.FindAllStringSubmatch(line, -1) {
				m.NativeABI = append(m.NativeABI, abi[1])
			}
		}
	}

	if m.PackageName == "" {
		return nil, fmt.Errorf("failed to parse package information")
	}
	return m, nil
}
