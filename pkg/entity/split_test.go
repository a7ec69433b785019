package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxxsfxyzm/installerx/pkg/models"
)

func TestParseSplitName(t *testing.T) {
	tests := []struct {
		name     string
		category SplitCategory
		value    string
	}{
		{"split_config.arm64_v8a.apk", SplitABI, "arm64-v8a"},
		{"config.armeabi_v7a", SplitABI, "armeabi-v7a"},
		{"config.x86_64", SplitABI, "x86_64"},
		{"split_config.xxhdpi.apk", SplitDensity, "xxhdpi"},
		{"config.tvdpi", SplitDensity, "tvdpi"},
		{"config.420dpi", SplitDensity, "420dpi"},
		{"config.en", SplitLanguage, "en"},
		{"config.zh_rCN", SplitLanguage, "zh-rCN"},
		{"split_feature_camera.config.xxhdpi.apk", SplitDensity, "xxhdpi"},
		{"split_feature_camera.apk", SplitFeature, "feature_camera"},
		{"dynamic_module", SplitFeature, "dynamic_module"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParseSplitName(tt.name)
			assert.Equal(t, tt.category, info.Category)
			assert.Equal(t, tt.value, info.Value)
		})
	}
}

func TestLanguageTag(t *testing.T) {
	tag, err := LanguageTag("zh-rCN")
	require.NoError(t, err)
	assert.Equal(t, "zh-CN", tag.String())

	tag, err = LanguageTag("en")
	require.NoError(t, err)
	assert.Equal(t, "en", tag.String())
}

func selectedNames(entities []SelectableEntity) []string {
	var names []string
	for _, e := range entities {
		if e.Selected {
			names = append(names, e.App.Name())
		}
	}
	return names
}

func TestDefaultSelectionSplits(t *testing.T) {
	b := base("a", 1)
	b.Label = "base"
	dm := &DexMetadataEntity{Package: "a", DMName: "base.dm", Source: FileSource{Path: "base.dm"}}
	entities := []SelectableEntity{
		{App: b},
		{App: dm},
		{App: split("a", "config.armeabi_v7a")},
		{App: split("a", "config.arm64_v8a")},
		{App: split("a", "config.xhdpi")},
		{App: split("a", "config.xxhdpi")},
		{App: split("a", "config.en")},
		{App: split("a", "config.fr")},
		{App: split("a", "config.zh_rCN")},
		{App: split("a", "feature_camera")},
	}
	device := models.PlatformContext{
		ABIs:    []string{"arm64-v8a", "armeabi-v7a"},
		Density: 440,
		Locales: []string{"zh-CN", "en-US"},
	}

	got := DefaultSelection(entities, models.DataTypeAPKS, device)
	assert.Equal(t, []string{"base", "base.dm", "config.arm64_v8a", "config.xxhdpi", "config.zh_rCN", "feature_camera"}, selectedNames(got))

	// input is left untouched
	assert.Empty(t, selectedNames(entities))
}

func TestDefaultSelectionLanguagePrefix(t *testing.T) {
	entities := []SelectableEntity{
		{App: split("a", "config.de")},
		{App: split("a", "config.en")},
	}
	got := DefaultSelection(entities, models.DataTypeAPKS, models.PlatformContext{Locales: []string{"en-GB"}})
	assert.Equal(t, []string{"config.en"}, selectedNames(got))
}

func TestDefaultSelectionMixedModule(t *testing.T) {
	entities := []SelectableEntity{
		{App: base("a", 1)},
		{App: &ModuleEntity{ID: "a", ModuleName: "mod", Source: FileSource{Path: "m.zip"}}},
	}
	got := DefaultSelection(entities, models.DataTypeMixedModuleAPK, models.PlatformContext{})
	assert.Empty(t, selectedNames(got))
}

func TestDefaultSelectionMultiApp(t *testing.T) {
	arm := base("a", 10)
	arm.Label, arm.Arch = "arm", "armeabi-v7a"
	arm64 := base("a", 10)
	arm64.Label, arm64.Arch = "arm64", "arm64-v8a"
	newer := base("a", 11)
	newer.Label, newer.Arch = "x86", "x86"
	other := base("b", 1)
	other.Label = "other"

	entities := []SelectableEntity{{App: arm}, {App: newer}, {App: arm64}, {App: other}}
	device := models.PlatformContext{ABIs: []string{"arm64-v8a", "armeabi-v7a", "armeabi"}}

	got := DefaultSelection(entities, models.DataTypeMultiAPK, device)
	assert.Equal(t, []string{"arm64", "other"}, selectedNames(got))
}
