// Package entity models the installable parts of an install request and the
// user's selection over them.
package entity

import (
	"fmt"
	"strconv"

	"github.com/wxxsfxyzm/installerx/pkg/models"
)

// Kind discriminates the AppEntity variants
type Kind int

const (
	KindBase Kind = iota
	KindSplit
	KindDexMetadata
	KindModule
	KindCollection
)

func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindSplit:
		return "split"
	case KindDexMetadata:
		return "dm"
	case KindModule:
		return "module"
	default:
		return "collection"
	}
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// AppEntity is one part discovered in an install source. The set of
// implementations is closed: *BaseEntity, *SplitEntity, *DexMetadataEntity,
// *ModuleEntity and *CollectionEntity.
type AppEntity interface {
	PackageName() string
	ContainerType() models.DataType
	Kind() Kind
	// Name is the short human identifier: label, split name, dm name or module name
	Name() string
	isAppEntity()
}

// Installable is a leaf entity that can be staged and handed to a backend.
// CollectionEntity deliberately does not implement it.
type Installable interface {
	AppEntity
	DataSource() Source
}

// Source locates the bytes of an installable part
type Source interface {
	String() string
	isSource()
}

// FileSource is a plain file on the local disk
type FileSource struct {
	Path string `json:"path" yaml:"path"`
}

func (s FileSource) String() string { return s.Path }
func (FileSource) isSource()        {}

// ZipEntrySource is an entry inside a local zip container
type ZipEntrySource struct {
	Archive string `json:"archive" yaml:"archive"`
	Entry   string `json:"entry" yaml:"entry"`
}

func (s ZipEntrySource) String() string { return s.Archive + "!/" + s.Entry }
func (ZipEntrySource) isSource()        {}

// BaseEntity is the base APK of an application
type BaseEntity struct {
	Package        string          `json:"package_name" yaml:"package_name"`
	VersionName    string          `json:"version_name" yaml:"version_name"`
	VersionCode    int64           `json:"version_code" yaml:"version_code"`
	Label          string          `json:"label,omitempty" yaml:"label,omitempty"`
	MinSDK         string          `json:"min_sdk,omitempty" yaml:"min_sdk,omitempty"`
	TargetSDK      string          `json:"target_sdk,omitempty" yaml:"target_sdk,omitempty"`
	Permissions    []string        `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	IsXposedModule bool            `json:"is_xposed_module" yaml:"is_xposed_module"`
	MinOsdkVersion string          `json:"min_osdk_version,omitempty" yaml:"min_osdk_version,omitempty"`
	SharedUserID   string          `json:"shared_user_id,omitempty" yaml:"shared_user_id,omitempty"`
	Arch           string          `json:"arch,omitempty" yaml:"arch,omitempty"`
	SignatureHash  string          `json:"signature_hash,omitempty" yaml:"signature_hash,omitempty"`
	Icon           []byte          `json:"-" yaml:"-"`
	Source         Source          `json:"source" yaml:"source"`
	Container      models.DataType `json:"container" yaml:"container"`
}

func (e *BaseEntity) PackageName() string            { return e.Package }
func (e *BaseEntity) ContainerType() models.DataType { return e.Container }
func (e *BaseEntity) Kind() Kind                     { return KindBase }
func (e *BaseEntity) DataSource() Source             { return e.Source }
func (*BaseEntity) isAppEntity()                     {}

// Name returns the label, falling back to the package name
func (e *BaseEntity) Name() string {
	if e.Label != "" {
		return e.Label
	}
	return e.Package
}

// MinSDKLevel parses MinSDK; ok is false when it is absent or not numeric
func (e *BaseEntity) MinSDKLevel() (int, bool) {
	return parseSDK(e.MinSDK)
}

// TargetSDKLevel parses TargetSDK
func (e *BaseEntity) TargetSDKLevel() (int, bool) {
	return parseSDK(e.TargetSDK)
}

func parseSDK(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SplitEntity is a configuration or feature split of an application
type SplitEntity struct {
	Package   string          `json:"package_name" yaml:"package_name"`
	SplitName string          `json:"split_name" yaml:"split_name"`
	FileName  string          `json:"file_name" yaml:"file_name"`
	Info      SplitInfo       `json:"info" yaml:"info"`
	MinSDK    string          `json:"min_sdk,omitempty" yaml:"min_sdk,omitempty"`
	TargetSDK string          `json:"target_sdk,omitempty" yaml:"target_sdk,omitempty"`
	Source    Source          `json:"source" yaml:"source"`
	Container models.DataType `json:"container" yaml:"container"`
}

func (e *SplitEntity) PackageName() string            { return e.Package }
func (e *SplitEntity) ContainerType() models.DataType { return e.Container }
func (e *SplitEntity) Kind() Kind                     { return KindSplit }
func (e *SplitEntity) Name() string                   { return e.SplitName }
func (e *SplitEntity) DataSource() Source             { return e.Source }
func (*SplitEntity) isAppEntity()                     {}

// DexMetadataEntity is the .dm profile shipped next to a base APK
type DexMetadataEntity struct {
	Package   string          `json:"package_name" yaml:"package_name"`
	DMName    string          `json:"dm_name" yaml:"dm_name"`
	FileName  string          `json:"file_name" yaml:"file_name"`
	Source    Source          `json:"source" yaml:"source"`
	Container models.DataType `json:"container" yaml:"container"`
}

func (e *DexMetadataEntity) PackageName() string            { return e.Package }
func (e *DexMetadataEntity) ContainerType() models.DataType { return e.Container }
func (e *DexMetadataEntity) Kind() Kind                     { return KindDexMetadata }
func (e *DexMetadataEntity) Name() string                   { return e.DMName }
func (e *DexMetadataEntity) DataSource() Source             { return e.Source }
func (*DexMetadataEntity) isAppEntity()                     {}

// ModuleEntity is a Magisk/KernelSU/APatch module. It is flashed through a
// module backend rather than the package service.
type ModuleEntity struct {
	ID          string          `json:"id" yaml:"id"`
	ModuleName  string          `json:"name" yaml:"name"`
	Version     string          `json:"version" yaml:"version"`
	VersionCode int64           `json:"version_code" yaml:"version_code"`
	Author      string          `json:"author,omitempty" yaml:"author,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Source      Source          `json:"source" yaml:"source"`
	Container   models.DataType `json:"container" yaml:"container"`
}

func (e *ModuleEntity) PackageName() string            { return e.ID }
func (e *ModuleEntity) ContainerType() models.DataType { return e.Container }
func (e *ModuleEntity) Kind() Kind                     { return KindModule }
func (e *ModuleEntity) Name() string                   { return e.ModuleName }
func (e *ModuleEntity) DataSource() Source             { return e.Source }
func (*ModuleEntity) isAppEntity()                     {}

// CollectionEntity groups other entities for display. It is never a leaf
// for installation.
type CollectionEntity struct {
	Package   string          `json:"package_name" yaml:"package_name"`
	Children  []AppEntity     `json:"-" yaml:"-"`
	Container models.DataType `json:"container" yaml:"container"`
}

func (e *CollectionEntity) PackageName() string            { return e.Package }
func (e *CollectionEntity) ContainerType() models.DataType { return e.Container }
func (e *CollectionEntity) Kind() Kind                     { return KindCollection }
func (e *CollectionEntity) Name() string                   { return e.Package }
func (*CollectionEntity) isAppEntity()                     {}

// VersionCodeOf returns the version code of entities that carry one
func VersionCodeOf(e AppEntity) int64 {
	switch v := e.(type) {
	case *BaseEntity:
		return v.VersionCode
	case *ModuleEntity:
		return v.VersionCode
	default:
		return 0
	}
}

// AsInstallable converts an entity for staging. A CollectionEntity (or any
// entity without a data source) is a caller bug.
func AsInstallable(e AppEntity) (Installable, error) {
	in, ok := e.(Installable)
	if !ok {
		return nil, fmt.Errorf("%w: %s entity %q cannot be installed directly", ErrNotInstallable, e.Kind(), e.PackageName())
	}
	if in.DataSource() == nil {
		return nil, fmt.Errorf("%w: %s entity %q has no data source", ErrNotInstallable, e.Kind(), e.PackageName())
	}
	return in, nil
}
