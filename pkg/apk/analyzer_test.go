package apk

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

type fakeInstalled map[string]*models.InstalledAppInfo

func (f fakeInstalled) InstalledApp(ctx context.Context, packageName string) (*models.InstalledAppInfo, error) {
	if packageName == "com.broken" {
		return nil, errors.New("device offline")
	}
	return f[packageName], nil
}

func newTestAnalyzer(t *testing.T, opts Options) *Analyzer {
	t.Helper()
	if opts.TempDir == "" {
		opts.TempDir = t.TempDir()
	}
	if opts.Platform.ABIs == nil {
		opts.Platform.ABIs = []string{"arm64-v8a", "armeabi-v7a"}
	}
	return NewAnalyzer(opts).WithParserChain(NewParserChain(nil, jsonParser{}))
}

func app(pkg string, code int64) Manifest {
	return Manifest{
		PackageName: pkg,
		VersionCode: code,
		VersionName: "1.0",
		Label:       "App",
		MinSDK:      "21",
		TargetSDK:   "34",
	}
}

func TestAnalyzeSingleAPK(t *testing.T) {
	dir := t.TempDir()
	block, hash := signatureBlock(t)
	m := app("com.a", 5)
	m.NativeABI = []string{"x86_64", "armeabi-v7a", "arm64-v8a"}
	m.MetaData = map[string]string{"minOsdkVersion": "13"}
	file := writeFile(t, dir, "a.apk", apkBytes(t, m,
		zipEntry{"res/mipmap-xxhdpi/ic_launcher.png", pngBytes(t, 48)},
		zipEntry{"META-INF/CERT.RSA", block},
		zipEntry{"assets/xposed_init", []byte("com.a.Hook")},
	))

	a := newTestAnalyzer(t, Options{
		Platform:  models.PlatformContext{Manufacturer: "OnePlus ", ABIs: []string{"arm64-v8a", "armeabi-v7a"}},
		Installed: fakeInstalled{"com.a": {PackageName: "com.a", VersionCode: 3, SignatureHash: hash}},
	})
	results, err := a.Analyze(context.Background(), []string{file})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "com.a", r.PackageName)
	assert.Equal(t, models.DataTypeAPK, r.ContainerType)
	assert.Equal(t, models.SessionModeSingle, r.SessionMode)
	assert.Equal(t, models.SignatureMatched, r.SignatureMatchStatus)
	require.NotNil(t, r.InstalledAppInfo)
	assert.Equal(t, int64(3), r.InstalledAppInfo.VersionCode)

	require.Len(t, r.Entities, 1)
	base, ok := r.Entities[0].App.(*entity.BaseEntity)
	require.True(t, ok)
	assert.Equal(t, int64(5), base.VersionCode)
	assert.Equal(t, "arm64-v8a", base.Arch)
	assert.Equal(t, "13", base.MinOsdkVersion)
	assert.True(t, base.IsXposedModule)
	assert.Equal(t, hash, base.SignatureHash)
	assert.Equal(t, entity.FileSource{Path: file}, base.Source)

	cfg, err := png.DecodeConfig(bytes.NewReader(base.Icon))
	require.NoError(t, err)
	assert.Equal(t, IconSize, cfg.Width)
	assert.Equal(t, IconSize, cfg.Height)
}

func TestAnalyzeSignatureMismatchAndLookupFailure(t *testing.T) {
	dir := t.TempDir()
	block, _ := signatureBlock(t)
	a1 := writeFile(t, dir, "a.apk", apkBytes(t, app("com.a", 5), zipEntry{"META-INF/CERT.RSA", block}))
	a2 := writeFile(t, dir, "b.apk", apkBytes(t, app("com.broken", 1)))
	a3 := writeFile(t, dir, "c.apk", apkBytes(t, app("com.fresh", 1)))

	a := newTestAnalyzer(t, Options{
		Installed: fakeInstalled{"com.a": {PackageName: "com.a", VersionCode: 5, SignatureHash: "00ff"}},
	})
	results, err := a.Analyze(context.Background(), []string{a1, a2, a3})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.SignatureMismatch, results[0].SignatureMatchStatus)
	assert.Equal(t, models.SignatureNotInstalled, results[1].SignatureMatchStatus)
	assert.Nil(t, results[1].InstalledAppInfo)
	assert.Equal(t, models.SignatureNotInstalled, results[2].SignatureMatchStatus)

	for _, r := range results {
		assert.Equal(t, models.DataTypeMultiAPK, r.ContainerType)
		assert.Equal(t, models.SessionModeBatch, r.SessionMode)
	}
}

func TestAnalyzeDeduplicatesCopies(t *testing.T) {
	dir := t.TempDir()
	data := apkBytes(t, app("com.a", 5))
	first := writeFile(t, dir, "a.apk", data)
	dup := writeFile(t, dir, "a (1).apk", data)

	results, err := newTestAnalyzer(t, Options{}).Analyze(context.Background(), []string{first, dup})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Entities, 1)
	assert.Equal(t, models.DataTypeAPK, results[0].ContainerType)
}

func TestAnalyzeAPKS(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "app.apks", zipBytes(t,
		zipEntry{"toc.pb", nil},
		zipEntry{"splits/base-master.apk", apkBytes(t, app("com.s", 7))},
		zipEntry{"splits/base-master_2.apk", []byte("dup")},
		zipEntry{"splits/split_config.arm64_v8a.apk", []byte("split")},
		zipEntry{"splits/base-xxhdpi.apk", []byte("split")},
		zipEntry{"splits/base.dm", []byte("dm")},
	))

	results, err := newTestAnalyzer(t, Options{}).Analyze(context.Background(), []string{file})
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, models.DataTypeAPKS, r.ContainerType)
	require.Len(t, r.Entities, 4)

	base := r.PrimaryBase()
	require.NotNil(t, base)
	assert.Equal(t, entity.ZipEntrySource{Archive: file, Entry: "splits/base-master.apk"}, base.Source)

	abi, ok := r.Entities[1].App.(*entity.SplitEntity)
	require.True(t, ok)
	assert.Equal(t, "config.arm64_v8a", abi.SplitName)
	assert.Equal(t, entity.SplitInfo{Category: entity.SplitABI, Value: "arm64-v8a"}, abi.Info)
	assert.Equal(t, "21", abi.MinSDK)
	assert.Equal(t, "34", abi.TargetSDK)

	density, ok := r.Entities[2].App.(*entity.SplitEntity)
	require.True(t, ok)
	assert.Equal(t, entity.SplitDensity, density.Info.Category)

	dm, ok := r.Entities[3].App.(*entity.DexMetadataEntity)
	require.True(t, ok)
	assert.Equal(t, "base", dm.DMName)
	assert.Equal(t, "com.s", dm.Package)
}

func TestAnalyzeCreatesMissingTempDir(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "app.apks", zipBytes(t,
		zipEntry{"splits/base-master.apk", apkBytes(t, app("com.s", 7))},
		zipEntry{"splits/split_config.arm64_v8a.apk", []byte("split")},
	))
	tempDir := filepath.Join(dir, "cache", "analyze")

	results, err := newTestAnalyzer(t, Options{TempDir: tempDir}).Analyze(context.Background(), []string{file})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].PrimaryBase())
	assert.DirExists(t, tempDir)
}

func TestAnalyzeAPKMFallsBackToInfo(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "app.apkm", zipBytes(t,
		zipEntry{"info.json", []byte(`{"pname":"com.m","versioncode":"301","release_version":"3.0.1","app_name":"Mirror","min_api":"26"}`)},
		zipEntry{"base.apk", []byte("encrypted")},
		zipEntry{"split_config.en.apk", []byte("split")},
	))

	results, err := newTestAnalyzer(t, Options{}).Analyze(context.Background(), []string{file})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.DataTypeAPKM, results[0].ContainerType)

	base := results[0].PrimaryBase()
	require.NotNil(t, base)
	assert.Equal(t, "com.m", base.Package)
	assert.Equal(t, int64(301), base.VersionCode)
	assert.Equal(t, "Mirror", base.Label)
	assert.Equal(t, "26", base.MinSDK)
	require.Len(t, results[0].Entities, 2)
	assert.Equal(t, entity.SplitLanguage, results[0].Entities[1].App.(*entity.SplitEntity).Info.Category)
}

func TestAnalyzeXAPK(t *testing.T) {
	dir := t.TempDir()
	manifest := `{
		"package_name": "com.x",
		"name": "X App",
		"version_code": "42",
		"version_name": "4.2",
		"min_sdk_version": 24,
		"target_sdk_version": "34",
		"split_apks": [
			{"file": "com.x.apk", "id": "base"},
			{"file": "config.arm64_v8a.apk", "id": "config.arm64_v8a"},
			{"file": "missing.apk", "id": "config.fr"}
		]
	}`
	m := app("com.x", 1)
	m.Label = ""
	file := writeFile(t, dir, "x.xapk", zipBytes(t,
		zipEntry{"manifest.json", []byte(manifest)},
		zipEntry{"com.x.apk", apkBytes(t, m)},
		zipEntry{"config.arm64_v8a.apk", []byte("split")},
		zipEntry{"icon.png", pngBytes(t, 512)},
	))

	results, err := newTestAnalyzer(t, Options{}).Analyze(context.Background(), []string{file})
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, models.DataTypeXAPK, r.ContainerType)
	require.Len(t, r.Entities, 2)

	base := r.PrimaryBase()
	require.NotNil(t, base)
	assert.Equal(t, int64(42), base.VersionCode)
	assert.Equal(t, "4.2", base.VersionName)
	assert.Equal(t, "X App", base.Label)
	assert.Equal(t, "21", base.MinSDK)
	assert.NotEmpty(t, base.Icon)

	split := r.Entities[1].App.(*entity.SplitEntity)
	assert.Equal(t, "com.x", split.Package)
	assert.Equal(t, "24", split.MinSDK)
	assert.Equal(t, "34", split.TargetSDK)
}

func TestAnalyzeMultiAPKZip(t *testing.T) {
	dir := t.TempDir()
	a, b := app("com.a", 1), app("com.b", 2)
	a.Label = ""
	file := writeFile(t, dir, "bundle.zip", zipBytes(t,
		zipEntry{"apps/first.apk", apkBytes(t, a)},
		zipEntry{"apps/second.apk", apkBytes(t, b)},
		zipEntry{"apps/broken.apk", []byte("nope")},
		zipEntry{"readme.txt", nil},
	))

	results, err := newTestAnalyzer(t, Options{Workers: 2}).Analyze(context.Background(), []string{file})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "com.a", results[0].PackageName)
	assert.Equal(t, "com.b", results[1].PackageName)
	assert.Equal(t, models.DataTypeMultiAPKZip, results[0].ContainerType)
	assert.Equal(t, models.SessionModeBatch, results[0].SessionMode)
	assert.Equal(t, "first", results[0].PrimaryBase().Label)
}

func TestAnalyzeModules(t *testing.T) {
	dir := t.TempDir()
	prop := zipEntry{"module.prop", []byte("id=zygisk\nname=Zygisk\nversion=v1\nversionCode=10\n")}
	moduleZip := writeFile(t, dir, "module.zip", zipBytes(t, prop, zipEntry{"META-INF/com/google/android/update-binary", nil}))
	mixedZip := writeFile(t, dir, "mixed.zip", zipBytes(t, prop, zipEntry{"companion.apk", apkBytes(t, app("com.companion", 3))}))

	a := newTestAnalyzer(t, Options{EnableModules: true})

	results, err := a.Analyze(context.Background(), []string{moduleZip})
	require.NoError(t, err)
	require.Len(t, results, 1)
	module, ok := results[0].Entities[0].App.(*entity.ModuleEntity)
	require.True(t, ok)
	assert.Equal(t, "zygisk", module.ID)
	assert.Equal(t, int64(10), module.VersionCode)
	assert.Equal(t, models.DataTypeModuleZip, results[0].ContainerType)

	results, err = a.Analyze(context.Background(), []string{mixedZip})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "zygisk", results[0].PackageName)
	assert.Equal(t, "com.companion", results[1].PackageName)
	for _, r := range results {
		assert.Equal(t, models.DataTypeMixedModuleZip, r.ContainerType)
	}

	_, err = newTestAnalyzer(t, Options{}).Analyze(context.Background(), []string{moduleZip})
	assert.Equal(t, ierrors.ParseError, ierrors.TypeOf(err))
}

func TestAnalyzeFailures(t *testing.T) {
	dir := t.TempDir()
	notZip := writeFile(t, dir, "notes.apk", []byte("plain text"))
	good := writeFile(t, dir, "a.apk", apkBytes(t, app("com.a", 1)))
	a := newTestAnalyzer(t, Options{})

	_, err := a.Analyze(context.Background(), []string{good, notZip})
	require.Error(t, err)
	assert.Equal(t, ierrors.ParseError, ierrors.TypeOf(err))
	failure := ierrors.AsFailure(err)
	assert.Equal(t, notZip, failure.Context["path"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, []string{good})
	assert.ErrorIs(t, err, context.Canceled)
}
