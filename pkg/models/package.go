package models

import "strings"

// DataType identifies the container a set of entities was discovered in
type DataType int

const (
	DataTypeNone DataType = iota
	DataTypeAPK
	DataTypeAPKS
	DataTypeAPKM
	DataTypeXAPK
	DataTypeMultiAPK
	DataTypeMultiAPKZip
	DataTypeModuleZip
	DataTypeMixedModuleAPK
	DataTypeMixedModuleZip
)

var dataTypeNames = map[DataType]string{
	DataTypeNone:           "NONE",
	DataTypeAPK:            "APK",
	DataTypeAPKS:           "APKS",
	DataTypeAPKM:           "APKM",
	DataTypeXAPK:           "XAPK",
	DataTypeMultiAPK:       "MULTI_APK",
	DataTypeMultiAPKZip:    "MULTI_APK_ZIP",
	DataTypeModuleZip:      "MODULE_ZIP",
	DataTypeMixedModuleAPK: "MIXED_MODULE_APK",
	DataTypeMixedModuleZip: "MIXED_MODULE_ZIP",
}

// String returns the string representation of the data type
func (d DataType) String() string {
	if name, ok := dataTypeNames[d]; ok {
		return name
	}
	return "NONE"
}

// MarshalText implements encoding.TextMarshaler
func (d DataType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// IsMixedModule reports whether the container holds both a module and apps
func (d DataType) IsMixedModule() bool {
	return d == DataTypeMixedModuleAPK || d == DataTypeMixedModuleZip
}

// IsMultiApp reports whether the container bundles several unrelated apps
func (d DataType) IsMultiApp() bool {
	return d == DataTypeMultiAPK || d == DataTypeMultiAPKZip
}

// SessionMode tells whether a session installs one package or many
type SessionMode int

const (
	SessionModeSingle SessionMode = iota
	SessionModeBatch
)

func (m SessionMode) String() string {
	if m == SessionModeBatch {
		return "BATCH"
	}
	return "SINGLE"
}

// MarshalText implements encoding.TextMarshaler
func (m SessionMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// SignatureMatchStatus is the result of comparing the signer of a new
// package with the signer of the installed one
type SignatureMatchStatus int

const (
	SignatureNotInstalled SignatureMatchStatus = iota
	SignatureMatched
	SignatureMismatch
	SignatureUnknownError
)

func (s SignatureMatchStatus) String() string {
	switch s {
	case SignatureMatched:
		return "MATCHED"
	case SignatureMismatch:
		return "MISMATCH"
	case SignatureUnknownError:
		return "UNKNOWN_ERROR"
	default:
		return "NOT_INSTALLED"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s SignatureMatchStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CompareSignatures derives a match status from two signer hashes.
// An empty hash on either side means the comparison could not be made.
func CompareSignatures(installed *InstalledAppInfo, candidate string) SignatureMatchStatus {
	if installed == nil {
		return SignatureNotInstalled
	}
	if installed.SignatureHash == "" || candidate == "" {
		return SignatureUnknownError
	}
	if strings.EqualFold(installed.SignatureHash, candidate) {
		return SignatureMatched
	}
	return SignatureMismatch
}

// InstalledAppInfo is a snapshot of the version currently on the device.
// It is captured once during analysis and never refreshed mid-session.
type InstalledAppInfo struct {
	PackageName   string `json:"package_name" yaml:"package_name"`
	VersionName   string `json:"version_name" yaml:"version_name"`
	VersionCode   int64  `json:"version_code" yaml:"version_code"`
	MinSDK        int    `json:"min_sdk,omitempty" yaml:"min_sdk,omitempty"`
	TargetSDK     int    `json:"target_sdk,omitempty" yaml:"target_sdk,omitempty"`
	IsArchived    bool   `json:"is_archived" yaml:"is_archived"`
	SignatureHash string `json:"signature_hash,omitempty" yaml:"signature_hash,omitempty"`
}
