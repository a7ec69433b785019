package apk

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/wxxsfxyzm/installerx/internal/workers"
	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

// flexString accepts a JSON string or number
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) int64() int64 {
	n, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// xapkManifest is the manifest.json of an XAPK
type xapkManifest struct {
	PackageName string     `json:"package_name"`
	Name        string     `json:"name"`
	VersionCode flexString `json:"version_code"`
	VersionName string     `json:"version_name"`
	MinSDK      flexString `json:"min_sdk_version"`
	TargetSDK   flexString `json:"target_sdk_version"`
	Splits      []struct {
		File string `json:"file"`
		ID   string `json:"id"`
	} `json:"split_apks"`
}

// apkmInfo is the info.json of an APKMirror bundle
type apkmInfo struct {
	PackageName string     `json:"pname"`
	VersionCode flexString `json:"versioncode"`
	Version     string     `json:"release_version"`
	AppName     string     `json:"app_name"`
	MinAPI      flexString `json:"min_api"`
}

func splitNameOf(entryName string) string {
	stem := strings.TrimSuffix(path.Base(entryName), path.Ext(entryName))
	return strings.TrimPrefix(stem, "split_")
}

func (a *Analyzer) newSplit(base *entity.BaseEntity, pkg, entryName, splitName string, src entity.Source, container models.DataType) *entity.SplitEntity {
	s := &entity.SplitEntity{
		Package:   pkg,
		SplitName: splitName,
		FileName:  path.Base(entryName),
		Info:      entity.ParseSplitName(splitName),
		Source:    src,
		Container: container,
	}
	if base != nil {
		s.MinSDK, s.TargetSDK = base.MinSDK, base.TargetSDK
	}
	return s
}

func dexMetadata(pkg, entryName string, src entity.Source, container models.DataType) *entity.DexMetadataEntity {
	return &entity.DexMetadataEntity{
		Package:   pkg,
		DMName:    strings.TrimSuffix(path.Base(entryName), path.Ext(entryName)),
		FileName:  path.Base(entryName),
		Source:    src,
		Container: container,
	}
}

// splitArchive handles APKS and APKM: one base plus splits named after
// their file names
func (a *Analyzer) splitArchive(ctx context.Context, archive string, zr *zip.Reader, container models.DataType) ([]entity.AppEntity, error) {
	baseFile := findBaseEntry(zr)

	var base *entity.BaseEntity
	var baseErr error
	if baseFile != nil {
		parsed, err := a.parseEntry(ctx, archive, baseFile, container)
		if err != nil {
			baseErr = err
			a.logger.Warn("Failed to parse base %s of %s: %v", baseFile.Name, archive, err)
		} else if b, ok := parsed.(*entity.BaseEntity); ok {
			base = b
		}
	}
	if base == nil && container == models.DataTypeAPKM {
		base = a.apkmBase(archive, zr, baseFile)
	}
	if base == nil {
		if baseErr != nil {
			return nil, fmt.Errorf("%s: base APK unreadable: %w", archive, baseErr)
		}
		return nil, fmt.Errorf("%s: base APK not found or unreadable", archive)
	}
	if base.Icon == nil {
		base.Icon = a.bundledIcon(zr)
	}

	entities := []entity.AppEntity{base}
	for _, f := range zr.File {
		if f == baseFile || f.FileInfo().IsDir() {
			continue
		}
		src := entity.ZipEntrySource{Archive: archive, Entry: f.Name}
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".apk":
			if strings.HasPrefix(strings.ToLower(path.Base(f.Name)), "base-master") {
				a.logger.Debug("Skipping duplicate master split %s", f.Name)
				continue
			}
			entities = append(entities, a.newSplit(base, base.Package, f.Name, splitNameOf(f.Name), src, container))
		case ".dm":
			entities = append(entities, dexMetadata(base.Package, f.Name, src, container))
		}
	}
	return entities, nil
}

func (a *Analyzer) apkmBase(archive string, zr *zip.Reader, baseFile *zip.File) *entity.BaseEntity {
	if baseFile == nil {
		return nil
	}
	data, err := readEntry(zr, "info.json")
	if err != nil {
		return nil
	}
	var info apkmInfo
	if err := json.Unmarshal(data, &info); err != nil || info.PackageName == "" {
		return nil
	}
	a.logger.Info("Falling back to info.json for %s", archive)
	return &entity.BaseEntity{
		Package:     info.PackageName,
		VersionName: info.Version,
		VersionCode: info.VersionCode.int64(),
		Label:       info.AppName,
		MinSDK:      string(info.MinAPI),
		Source:      entity.ZipEntrySource{Archive: archive, Entry: baseFile.Name},
		Container:   models.DataTypeAPKM,
	}
}

// xapk reads manifest.json and maps split_apks onto entities. The base is
// parsed in full when it can be; manifest values win for identity.
func (a *Analyzer) xapk(ctx context.Context, archive string, zr *zip.Reader) ([]entity.AppEntity, error) {
	const container = models.DataTypeXAPK

	data, err := readEntry(zr, "manifest.json")
	if err != nil {
		return nil, err
	}
	var manifest xapkManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest.json: %w", err)
	}
	if manifest.PackageName == "" {
		return nil, fmt.Errorf("manifest.json has no package_name")
	}

	type part struct{ file, id string }
	var parts []part
	for _, s := range manifest.Splits {
		parts = append(parts, part{s.File, s.ID})
	}
	if len(parts) == 0 {
		// expansion-only XAPKs ship <package>.apk next to the OBB files
		for _, f := range zr.File {
			if !isAPKEntry(f) {
				continue
			}
			id := splitNameOf(f.Name)
			if id == manifest.PackageName || id == "base" {
				id = "base"
			}
			parts = append(parts, part{f.Name, id})
		}
	}

	var base *entity.BaseEntity
	var rest []entity.AppEntity
	for _, p := range parts {
		f := findEntry(zr, p.file)
		if f == nil {
			a.logger.Warn("%s lists %s but the archive does not contain it", archive, p.file)
			continue
		}
		src := entity.ZipEntrySource{Archive: archive, Entry: f.Name}

		switch {
		case strings.EqualFold(path.Ext(f.Name), ".dm"):
			rest = append(rest, dexMetadata(manifest.PackageName, f.Name, src, container))
		case p.id == "base" || p.id == "":
			base = a.xapkBase(ctx, archive, f, manifest)
		default:
			rest = append(rest, a.newSplit(nil, manifest.PackageName, f.Name, p.id, src, container))
		}
	}

	var entities []entity.AppEntity
	if base != nil {
		if base.Icon == nil {
			base.Icon = a.bundledIcon(zr)
		}
		entities = append(entities, base)
	}
	for _, e := range rest {
		if s, ok := e.(*entity.SplitEntity); ok {
			s.MinSDK, s.TargetSDK = string(manifest.MinSDK), string(manifest.TargetSDK)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func (a *Analyzer) xapkBase(ctx context.Context, archive string, f *zip.File, manifest xapkManifest) *entity.BaseEntity {
	base := &entity.BaseEntity{}
	if parsed, err := a.parseEntry(ctx, archive, f, models.DataTypeXAPK); err != nil {
		a.logger.Warn("Failed to parse base %s of %s, using manifest.json: %v", f.Name, archive, err)
	} else if b, ok := parsed.(*entity.BaseEntity); ok {
		base = b
	}

	base.Package = manifest.PackageName
	base.Source = entity.ZipEntrySource{Archive: archive, Entry: f.Name}
	base.Container = models.DataTypeXAPK
	if code := manifest.VersionCode.int64(); code > 0 {
		base.VersionCode = code
	}
	if manifest.VersionName != "" {
		base.VersionName = manifest.VersionName
	}
	if manifest.Name != "" && base.Label == "" {
		base.Label = manifest.Name
	}
	if base.MinSDK == "" {
		base.MinSDK = string(manifest.MinSDK)
	}
	if base.TargetSDK == "" {
		base.TargetSDK = string(manifest.TargetSDK)
	}
	return base
}

// multiZip parses every APK of an archive, concurrently
func (a *Analyzer) multiZip(ctx context.Context, archive string, zr *zip.Reader, container models.DataType) ([]entity.AppEntity, error) {
	var names []string
	files := make(map[string]*zip.File)
	for _, f := range zr.File {
		if isAPKEntry(f) {
			names = append(names, f.Name)
			files[f.Name] = f
		}
	}

	pool := workers.NewPool[entity.AppEntity](workers.WithWorkerLimit[entity.AppEntity](a.workers))
	results := pool.Run(ctx, names, func(ctx context.Context, name string) (entity.AppEntity, error) {
		return a.parseEntry(ctx, archive, files[name], container)
	})

	var entities []entity.AppEntity
	for _, r := range results {
		if r.Err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("Skipping %s in %s: %v", r.Input, archive, r.Err)
			continue
		}
		if b, ok := r.Value.(*entity.BaseEntity); ok && b.Label == "" {
			b.Label = strings.TrimSuffix(path.Base(r.Input), path.Ext(r.Input))
		}
		entities = append(entities, r.Value)
	}
	if len(entities) == 0 && len(names) > 0 {
		return nil, fmt.Errorf("%s: none of %d APKs could be parsed", archive, len(names))
	}
	return entities, nil
}

// module turns module.prop into a ModuleEntity. An unusable descriptor
// yields no entity rather than an error.
func (a *Analyzer) module(archive string, zr *zip.Reader, container models.DataType) []entity.AppEntity {
	prop, err := ReadModuleProp(zr)
	if err != nil {
		a.logger.Warn("Module %s: %v", archive, err)
		return nil
	}
	return []entity.AppEntity{&entity.ModuleEntity{
		ID:          prop.ID,
		ModuleName:  prop.Name,
		Version:     prop.Version,
		VersionCode: prop.VersionCode,
		Author:      prop.Author,
		Description: prop.Description,
		Source:      entity.FileSource{Path: archive},
		Container:   container,
	}}
}

func (a *Analyzer) bundledIcon(zr *zip.Reader) []byte {
	data, err := readEntry(zr, "icon.png")
	if err != nil {
		return nil
	}
	icon, err := a.icons.ExtractBytes(data, "icon.png")
	if err != nil {
		a.logger.Debug("Ignoring bundled icon: %v", err)
		return nil
	}
	return icon
}
