package apk

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shogo82148/androidbinary"
)

// binaryManifest mirrors the parts of the compiled manifest we read.
// Field tags follow the namespaced attribute names androidbinary emits.
type binaryManifest struct {
	Package          androidbinary.String `xml:"package,attr"`
	Split            androidbinary.String `xml:"split,attr"`
	SharedUserID     androidbinary.String `xml:"http://schemas.android.com/apk/res/android sharedUserId,attr"`
	VersionCode      androidbinary.Int32  `xml:"http://schemas.android.com/apk/res/android versionCode,attr"`
	VersionCodeMajor androidbinary.Int32  `xml:"http://schemas.android.com/apk/res/android versionCodeMajor,attr"`
	VersionName      androidbinary.String `xml:"http://schemas.android.com/apk/res/android versionName,attr"`
	SDK              binaryUsesSDK        `xml:"uses-sdk"`
	App              binaryApplication    `xml:"application"`
	UsesPermissions  []binaryPermission   `xml:"uses-permission"`
}

type binaryUsesSDK struct {
	Min    androidbinary.String `xml:"http://schemas.android.com/apk/res/android minSdkVersion,attr"`
	Target androidbinary.String `xml:"http://schemas.android.com/apk/res/android targetSdkVersion,attr"`
}

type binaryApplication struct {
	Label    androidbinary.String `xml:"http://schemas.android.com/apk/res/android label,attr"`
	MetaData []binaryMetaData     `xml:"meta-data"`
}

type binaryMetaData struct {
	Name  androidbinary.String `xml:"http://schemas.android.com/apk/res/android name,attr"`
	Value androidbinary.String `xml:"http://schemas.android.com/apk/res/android value,attr"`
}

type binaryPermission struct {
	Name androidbinary.String `xml:"http://schemas.android.com/apk/res/android name,attr"`
}

// BinaryParser decodes AndroidManifest.xml and resources.arsc in process
// with shogo82148/androidbinary
type BinaryParser struct{}

// NewBinaryParser creates the built-in manifest parser
func NewBinaryParser() *BinaryParser {
	return &BinaryParser{}
}

// GetParserInfo returns information about this parser
func (p *BinaryParser) GetParserInfo() ParserInfo {
	return ParserInfo{
		Name:      "AndroidBinary",
		Available: true,
		Priority:  1,
	}
}

// CanParse accepts any file; module zips carry manifests under .zip names
func (p *BinaryParser) CanParse(path string) bool {
	return true
}

// ParseManifest reads the manifest of the APK at path
func (p *BinaryParser) ParseManifest(path string) (*Manifest, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open apk: %w", err)
	}
	defer reader.Close()

	return parseBinaryManifest(&reader.Reader)
}

func parseBinaryManifest(zr *zip.Reader) (*Manifest, error) {
	xmlData, err := readEntry(zr, "AndroidManifest.xml")
	if err != nil {
		return nil, err
	}

	var table *androidbinary.TableFile
	// splits and stripped APKs may carry no resource table
	if resData, err := readEntry(zr, "resources.arsc"); err == nil {
		if t, err := androidbinary.NewTableFile(bytes.NewReader(resData)); err == nil {
			table = t
		}
	}

	xmlFile, err := androidbinary.NewXMLFile(bytes.NewReader(xmlData))
	if err != nil {
		return nil, fmt.Errorf("decode binary manifest: %w", err)
	}
	var raw binaryManifest
	if err := xmlFile.Decode(&raw, table, nil); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	m := &Manifest{
		PackageName:  stringOf(raw.Package),
		Split:        stringOf(raw.Split),
		SharedUserID: stringOf(raw.SharedUserID),
		VersionName:  stringOf(raw.VersionName),
		Label:        stringOf(raw.App.Label),
		MinSDK:       stringOf(raw.SDK.Min),
		TargetSDK:    stringOf(raw.SDK.Target),
		VersionCode:  int64(int32Of(raw.VersionCodeMajor))<<32 | int64(uint32(int32Of(raw.VersionCode))),
		MetaData:     make(map[string]string),
		NativeABI:    nativeABIs(zr),
	}
	for _, perm := range raw.UsesPermissions {
		if name := stringOf(perm.Name); name != "" {
			m.Permissions = append(m.Permissions, name)
		}
	}
	for _, md := range raw.App.MetaData {
		if name := stringOf(md.Name); name != "" {
			m.MetaData[name] = stringOf(md.Value)
		}
	}
	if m.PackageName == "" {
		return nil, fmt.Errorf("manifest has no package name")
	}
	return m, nil
}

func stringOf(s androidbinary.String) string {
	v, err := s.String()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

func int32Of(v androidbinary.Int32) int32 {
	n, err := v.Int32()
	if err != nil {
		return 0
	}
	return n
}

// nativeABIs lists the ABI folders under lib/
func nativeABIs(zr *zip.Reader) []string {
	seen := make(map[string]bool)
	for _, f := range zr.File {
		parts := strings.Split(f.Name, "/")
		if len(parts) >= 3 && parts[0] == "lib" && parts[1] != "" {
			seen[parts[1]] = true
		}
	}
	abis := make([]string, 0, len(seen))
	for abi := range seen {
		abis = append(abis, abi)
	}
	sort.Strings(abis)
	return abis
}

func findEntry(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	f := findEntry(zr, name)
	if f == nil {
		return nil, fmt.Errorf("%s not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
