// Package apk inspects Android package containers and turns them into
// entities the installer can select and install.
package apk

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Manifest is what the installer needs out of AndroidManifest.xml
type Manifest struct {
	PackageName  string
	Split        string
	SharedUserID string
	VersionCode  int64
	VersionName  string
	Label        string
	MinSDK       string
	TargetSDK    string
	Permissions  []string
	// MetaData holds application meta-data name/value pairs
	MetaData  map[string]string
	NativeABI []string
}

// IsSplit reports whether the manifest belongs to a split APK
func (m *Manifest) IsSplit() bool {
	return m.Split != ""
}

// Parser reads the manifest of an APK file on disk
type Parser interface {
	ParseManifest(path string) (*Manifest, error)
	GetParserInfo() ParserInfo
	CanParse(path string) bool
}

// ParserInfo contains information about a parser
type ParserInfo struct {
	Name      string
	Available bool
	Priority  int // Lower number = higher priority
}

// Logger interface for parser chain logging
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// ParserChain tries its parsers in priority order until one succeeds
type ParserChain struct {
	parsers []Parser
	logger  Logger
}

// NewParserChain creates a chain with the given parsers
func NewParserChain(logger Logger, parsers ...Parser) *ParserChain {
	if logger == nil {
		logger = nopLogger{}
	}

	pc := &ParserChain{logger: logger}
	for _, p := range parsers {
		pc.AddParser(p)
	}
	return pc
}

// DefaultParserChain uses the built-in binary XML parser, falling back to
// aapt when it is installed
func DefaultParserChain(logger Logger, aaptPath string) *ParserChain {
	return NewParserChain(logger, NewBinaryParser(), NewAAPTParser(aaptPath))
}

// AddParser adds a parser to the chain
func (pc *ParserChain) AddParser(parser Parser) {
	pc.parsers = append(pc.parsers, parser)
	sort.SliceStable(pc.parsers, func(i, j int) bool {
		return pc.parsers[i].GetParserInfo().Priority < pc.parsers[j].GetParserInfo().Priority
	})
}

// ParseManifest attempts to parse the manifest using the parser chain
func (pc *ParserChain) ParseManifest(path string) (*Manifest, error) {
	if len(pc.parsers) == 0 {
		return nil, fmt.Errorf("no parsers available")
	}

	var failures []string
	var lastErr error

	for _, parser := range pc.parsers {
		info := parser.GetParserInfo()

		if !info.Available {
			pc.logger.Debug("Skipping unavailable parser: %s", info.Name)
			continue
		}
		if !parser.CanParse(path) {
			pc.logger.Debug("Parser %s cannot parse file: %s", info.Name, path)
			continue
		}

		startTime := time.Now()
		manifest, err := parser.ParseManifest(path)
		if err != nil {
			pc.logger.Warn("Parser %s failed: %v", info.Name, err)
			failures = append(failures, fmt.Sprintf("%s: %v", info.Name, err))
			lastErr = err
			continue
		}
		if manifest.PackageName == "" {
			lastErr = fmt.Errorf("%s: manifest has no package name", info.Name)
			failures = append(failures, lastErr.Error())
			continue
		}

		pc.logger.Debug("Parsed %s using %s (took %v)", path, info.Name, time.Since(startTime))
		return manifest, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all available parsers failed (%s): %w", strings.Join(failures, "; "), lastErr)
	}
	return nil, fmt.Errorf("no suitable parser found for file: %s", path)
}

// GetAvailableParsers returns information about all parsers in the chain
func (pc *ParserChain) GetAvailableParsers() []ParserInfo {
	var infos []ParserInfo
	for _, parser := range pc.parsers {
		infos = append(infos, parser.GetParserInfo())
	}
	return infos
}
