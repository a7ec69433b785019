package apk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wxxsfxyzm/installerx/pkg/models"
)

func TestDetectContainer(t *testing.T) {
	manifest := zipEntry{"AndroidManifest.xml", []byte("binary")}
	prop := zipEntry{"module.prop", []byte("id=m\nname=M\n")}

	tests := []struct {
		name    string
		entries []zipEntry
		modules bool
		want    models.DataType
	}{
		{"plain apk", []zipEntry{manifest}, false, models.DataTypeAPK},
		{"xapk", []zipEntry{
			{"manifest.json", []byte(`{"package_name":"com.x","version_code":"1","split_apks":[]}`)},
			{"com.x.apk", nil},
		}, false, models.DataTypeXAPK},
		{"xapk with expansions", []zipEntry{
			{"manifest.json", []byte(`{"package_name":"com.x","version_code":1,"expansions":[]}`)},
		}, false, models.DataTypeXAPK},
		{"manifest.json without payload", []zipEntry{
			{"manifest.json", []byte(`{"package_name":"com.x","version_code":1}`)},
			manifest,
		}, false, models.DataTypeAPK},
		{"apkm", []zipEntry{
			{"info.json", []byte(`{"pname":"com.m","versioncode":"3"}`)},
			{"base.apk", nil},
		}, false, models.DataTypeAPKM},
		{"info.json of another tool", []zipEntry{
			{"info.json", []byte(`{"name":"x"}`)},
			{"base.apk", nil},
		}, false, models.DataTypeAPKS},
		{"toc.pb", []zipEntry{{"toc.pb", nil}}, false, models.DataTypeAPKS},
		{"nested base-master", []zipEntry{{"splits/base-master.apk", nil}}, false, models.DataTypeAPKS},
		{"multi apk zip", []zipEntry{{"apps/a.apk", nil}, {"readme.txt", nil}}, false, models.DataTypeMultiAPKZip},
		{"nothing", []zipEntry{{"readme.txt", nil}}, false, models.DataTypeNone},
		{"module zip", []zipEntry{prop}, true, models.DataTypeModuleZip},
		{"module zip disabled", []zipEntry{prop}, false, models.DataTypeNone},
		{"mixed module apk", []zipEntry{{"common/module.prop", nil}, manifest}, true, models.DataTypeMixedModuleAPK},
		{"mixed module apk disabled", []zipEntry{{"common/module.prop", nil}, manifest}, false, models.DataTypeAPK},
		{"mixed module zip", []zipEntry{prop, {"app.apk", nil}}, true, models.DataTypeMixedModuleZip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContainer(zipReader(t, tt.entries...), tt.modules))
		})
	}
}
