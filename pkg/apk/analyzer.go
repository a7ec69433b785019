package apk

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/internal/workers"
	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

// InstalledLookup reports what the device currently has installed. It
// returns nil, nil when the package is not installed.
type InstalledLookup interface {
	InstalledApp(ctx context.Context, packageName string) (*models.InstalledAppInfo, error)
}

// Options configures an Analyzer
type Options struct {
	Platform      models.PlatformContext
	EnableModules bool
	Installed     InstalledLookup
	// TempDir receives APKs extracted from containers while they are parsed
	TempDir  string
	Workers  int
	AAPTPath string
	Logger   Logger
}

// Analyzer detects the container of each source file and produces the
// per-package analysis results the session selects from
type Analyzer struct {
	chain         *ParserChain
	icons         *IconExtractor
	platform      models.PlatformContext
	enableModules bool
	installed     InstalledLookup
	tempDir       string
	workers       int
	logger        Logger
}

// NewAnalyzer creates an analyzer with the default parser chain
func NewAnalyzer(opts Options) *Analyzer {
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Analyzer{
		chain:         DefaultParserChain(logger, opts.AAPTPath),
		icons:         NewIconExtractor(),
		platform:      opts.Platform,
		enableModules: opts.EnableModules,
		installed:     opts.Installed,
		tempDir:       opts.TempDir,
		workers:       opts.Workers,
		logger:        logger,
	}
}

// WithParserChain replaces the manifest parser chain
func (a *Analyzer) WithParserChain(chain *ParserChain) *Analyzer {
	a.chain = chain
	return a
}

// Analyze inspects every path and groups what it finds by package. Any
// file that cannot be analysed fails the whole call with a ParseError.
func (a *Analyzer) Analyze(ctx context.Context, paths []string) ([]entity.PackageAnalysisResult, error) {
	pool := workers.NewPool[[]entity.AppEntity](workers.WithWorkerLimit[[]entity.AppEntity](a.workers))
	results := pool.Run(ctx, paths, a.analyzeFile)

	var all []entity.AppEntity
	for _, r := range results {
		if r.Err != nil {
			if errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded) {
				return nil, r.Err
			}
			return nil, ierrors.Wrap(r.Err, ierrors.ParseError, fmt.Sprintf("cannot analyse %s", r.Input)).
				WithContext("path", r.Input)
		}
		all = append(all, r.Value...)
	}

	unique := entity.Deduplicate(all)
	groups := entity.GroupByPackage(unique, models.DataTypeNone)
	container := sessionContainer(groups, unique)
	for i := range groups {
		groups[i].ContainerType = container
		alignSplitSDKs(&groups[i])
	}

	a.attachInstalled(ctx, groups)
	return groups, nil
}

// sessionContainer picks the container type shown for the session: a
// multi-app type when several applications are present outside a module
// container, else the container of the first entity
func sessionContainer(groups []entity.PackageAnalysisResult, all []entity.AppEntity) models.DataType {
	if len(all) == 0 {
		return models.DataTypeNone
	}
	first := all[0].ContainerType()
	if first.IsMixedModule() {
		return first
	}

	multi := len(groups) > 1
	if !multi {
		bases := 0
		for _, e := range all {
			if e.Kind() == entity.KindBase {
				bases++
			}
		}
		multi = bases > 1
	}

	switch {
	case multi && first == models.DataTypeMultiAPKZip:
		return models.DataTypeMultiAPKZip
	case multi:
		return models.DataTypeMultiAPK
	default:
		return first
	}
}

// alignSplitSDKs copies the SDK levels of the base onto the splits of the
// same package; split manifests often omit them
func alignSplitSDKs(r *entity.PackageAnalysisResult) {
	var base *entity.BaseEntity
	for _, e := range r.Entities {
		if b, ok := e.App.(*entity.BaseEntity); ok {
			base = b
			break
		}
	}
	if base == nil {
		return
	}
	for _, e := range r.Entities {
		if s, ok := e.App.(*entity.SplitEntity); ok {
			s.TargetSDK = base.TargetSDK
			if s.MinSDK == "" {
				s.MinSDK = base.MinSDK
			}
		}
	}
}

func (a *Analyzer) attachInstalled(ctx context.Context, groups []entity.PackageAnalysisResult) {
	if a.installed == nil {
		return
	}

	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.PackageName
	}
	pool := workers.NewPool[*models.InstalledAppInfo](workers.WithWorkerLimit[*models.InstalledAppInfo](a.workers))
	lookups := pool.Run(ctx, names, a.installed.InstalledApp)

	for i, l := range lookups {
		g := &groups[i]
		if l.Err != nil {
			a.logger.Warn("Cannot query installed version of %s: %v", g.PackageName, l.Err)
			g.SignatureMatchStatus = models.SignatureNotInstalled
			continue
		}
		g.InstalledAppInfo = l.Value

		hash := ""
		if b := g.PrimaryBase(); b != nil {
			hash = b.SignatureHash
		}
		g.SignatureMatchStatus = models.CompareSignatures(l.Value, hash)
	}
}

func (a *Analyzer) analyzeFile(ctx context.Context, file string) ([]entity.AppEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("not a zip container: %w", err)
	}
	defer reader.Close()
	zr := &reader.Reader

	container := DetectContainer(zr, a.enableModules)
	a.logger.Debug("Detected %s as %s", file, container)

	switch container {
	case models.DataTypeAPK:
		e, err := a.parseFile(file, zr, entity.FileSource{Path: file}, container)
		if err != nil {
			return nil, err
		}
		return []entity.AppEntity{e}, nil
	case models.DataTypeAPKS, models.DataTypeAPKM:
		return a.splitArchive(ctx, file, zr, container)
	case models.DataTypeXAPK:
		return a.xapk(ctx, file, zr)
	case models.DataTypeMultiAPKZip:
		return a.multiZip(ctx, file, zr, container)
	case models.DataTypeModuleZip:
		return a.module(file, zr, container), nil
	case models.DataTypeMixedModuleAPK:
		entities := a.module(file, zr, container)
		app, err := a.parseFile(file, zr, entity.FileSource{Path: file}, container)
		if err != nil {
			a.logger.Warn("Module %s carries an unreadable manifest: %v", file, err)
			return entities, nil
		}
		return append(entities, app), nil
	case models.DataTypeMixedModuleZip:
		entities := a.module(file, zr, container)
		apps, err := a.multiZip(ctx, file, zr, container)
		if err != nil {
			a.logger.Warn("Module %s: %v", file, err)
		}
		return append(entities, apps...), nil
	}
	return nil, fmt.Errorf("unsupported package format")
}

// parseEntry extracts an APK nested in archive into the temp dir and
// parses it. The entity points back at the zip entry.
func (a *Analyzer) parseEntry(ctx context.Context, archive string, f *zip.File, container models.DataType) (entity.AppEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.tempDir != "" {
		if err := os.MkdirAll(a.tempDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create temp directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(a.tempDir, "entry-*.apk")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	rc, err := f.Open()
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	_, err = io.Copy(tmp, rc)
	rc.Close()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}

	nested, err := zip.OpenReader(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("%s is not an APK: %w", f.Name, err)
	}
	defer nested.Close()

	e, err := a.parseFile(tmp.Name(), &nested.Reader, entity.ZipEntrySource{Archive: archive, Entry: f.Name}, container)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	if s, ok := e.(*entity.SplitEntity); ok {
		s.FileName = path.Base(f.Name)
	}
	return e, nil
}

// parseFile parses the APK at file, already opened as zr
func (a *Analyzer) parseFile(file string, zr *zip.Reader, src entity.Source, container models.DataType) (entity.AppEntity, error) {
	m, err := a.chain.ParseManifest(file)
	if err != nil {
		return nil, err
	}

	if m.IsSplit() {
		return &entity.SplitEntity{
			Package:   m.PackageName,
			SplitName: m.Split,
			FileName:  filepath.Base(file),
			Info:      entity.ParseSplitName(m.Split),
			MinSDK:    m.MinSDK,
			TargetSDK: m.TargetSDK,
			Source:    src,
			Container: container,
		}, nil
	}

	base := &entity.BaseEntity{
		Package:        m.PackageName,
		VersionName:    m.VersionName,
		VersionCode:    m.VersionCode,
		Label:          m.Label,
		MinSDK:         m.MinSDK,
		TargetSDK:      m.TargetSDK,
		Permissions:    m.Permissions,
		SharedUserID:   m.SharedUserID,
		IsXposedModule: isXposedModule(m, zr),
		Arch:           BestABI(m.NativeABI, a.platform.ABIs),
		Source:         src,
		Container:      container,
	}
	if a.platform.IsManufacturer(models.ManufacturerOppo, models.ManufacturerOnePlus) {
		base.MinOsdkVersion = m.MetaData["minOsdkVersion"]
	}

	if hash, err := SignatureHash(zr); err != nil {
		a.logger.Debug("No signature hash for %s: %v", m.PackageName, err)
	} else {
		base.SignatureHash = hash
	}
	if icon, err := a.icons.Extract(file); err != nil {
		a.logger.Debug("No icon for %s: %v", m.PackageName, err)
	} else {
		base.Icon = icon
	}
	return base, nil
}

func isXposedModule(m *Manifest, zr *zip.Reader) bool {
	if strings.EqualFold(m.MetaData["xposedmodule"], "true") {
		return true
	}
	return findEntry(zr, "assets/xposed_init") != nil || findEntry(zr, "META-INF/xposed/java_init.list") != nil
}

// BestABI picks the APK native ABI to report against the device ABI list.
// It is empty when the APK has no native code; otherwise the first device
// ABI the APK ships wins, then 32-bit fallbacks the device can translate,
// then whatever the APK offers first.
func BestABI(apkABIs, deviceABIs []string) string {
	if len(apkABIs) == 0 {
		return ""
	}
	has := make(map[string]bool, len(apkABIs))
	for _, abi := range apkABIs {
		has[entity.NormalizeABI(abi)] = true
	}

	for _, abi := range deviceABIs {
		if n := entity.NormalizeABI(abi); has[n] {
			return n
		}
	}

	if len(deviceABIs) > 0 {
		primary := entity.NormalizeABI(deviceABIs[0])
		switch {
		case strings.HasPrefix(primary, "arm"):
			for _, fallback := range []string{"armeabi-v7a", "armeabi"} {
				if has[fallback] {
					return fallback
				}
			}
		case strings.HasPrefix(primary, "x86") && has["x86"]:
			return "x86"
		}
	}
	return entity.NormalizeABI(apkABIs[0])
}
