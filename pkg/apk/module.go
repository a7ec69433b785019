package apk

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/magiconair/properties"
)

var modulePropPaths = []string{"module.prop", "common/module.prop"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ModuleProp is the descriptor of a Magisk, KernelSU or APatch module
type ModuleProp struct {
	ID          string
	Name        string
	Version     string
	VersionCode int64
	Author      string
	Description string
}

// hasModuleProp reports whether the archive holds a module descriptor
func hasModuleProp(zr *zip.Reader) bool {
	for _, name := range modulePropPaths {
		if findEntry(zr, name) != nil {
			return true
		}
	}
	return false
}

// ReadModuleProp reads module.prop (or common/module.prop) from a module zip
func ReadModuleProp(zr *zip.Reader) (*ModuleProp, error) {
	for _, name := range modulePropPaths {
		if data, err := readEntry(zr, name); err == nil {
			return ParseModuleProp(data)
		}
	}
	return nil, fmt.Errorf("module.prop not found")
}

// ParseModuleProp parses a module.prop file. A leading UTF-8 BOM is
// ignored, and id and name are required.
func ParseModuleProp(data []byte) (*ModuleProp, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse module.prop: %w", err)
	}

	prop := &ModuleProp{
		ID:          strings.TrimSpace(props.GetString("id", "")),
		Name:        strings.TrimSpace(props.GetString("name", "")),
		Version:     props.GetString("version", ""),
		VersionCode: -1,
		Author:      props.GetString("author", ""),
		Description: props.GetString("description", ""),
	}
	if code, err := strconv.ParseInt(strings.TrimSpace(props.GetString("versionCode", "")), 10, 64); err == nil {
		prop.VersionCode = code
	}
	if prop.ID == "" || prop.Name == "" {
		return nil, fmt.Errorf("incomplete module.prop: id and name are required")
	}
	return prop, nil
}
