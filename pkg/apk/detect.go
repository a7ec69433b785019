package apk

import (
	"archive/zip"
	"encoding/json"
	"path"
	"strings"

	"github.com/wxxsfxyzm/installerx/pkg/models"
)

// DetectContainer classifies an opened archive. Module containers are
// only recognised when module installation is enabled; otherwise a module
// bundling a manifest is treated as a plain APK.
func DetectContainer(zr *zip.Reader, enableModules bool) models.DataType {
	if enableModules && hasModuleProp(zr) {
		switch {
		case findEntry(zr, "AndroidManifest.xml") != nil:
			return models.DataTypeMixedModuleAPK
		case hasAPKEntries(zr):
			return models.DataTypeMixedModuleZip
		default:
			return models.DataTypeModuleZip
		}
	}

	if hasJSONKeys(zr, "manifest.json", "package_name", "version_code") && hasAnyJSONKey(zr, "manifest.json", "split_apks", "expansions") {
		return models.DataTypeXAPK
	}
	if hasJSONKeys(zr, "info.json", "pname", "versioncode") {
		return models.DataTypeAPKM
	}
	if findEntry(zr, "AndroidManifest.xml") != nil {
		return models.DataTypeAPK
	}
	if findEntry(zr, "toc.pb") != nil || findBaseEntry(zr) != nil {
		return models.DataTypeAPKS
	}
	if hasAPKEntries(zr) {
		return models.DataTypeMultiAPKZip
	}
	return models.DataTypeNone
}

func isAPKEntry(f *zip.File) bool {
	return !f.FileInfo().IsDir() && strings.EqualFold(path.Ext(f.Name), ".apk")
}

func hasAPKEntries(zr *zip.Reader) bool {
	for _, f := range zr.File {
		if isAPKEntry(f) {
			return true
		}
	}
	return false
}

// findBaseEntry returns the base.apk (or bundletool's base-master.apk) of
// a split archive, at any depth
func findBaseEntry(zr *zip.Reader) *zip.File {
	for _, f := range zr.File {
		name := path.Base(f.Name)
		if strings.EqualFold(name, "base.apk") || strings.EqualFold(name, "base-master.apk") {
			return f
		}
	}
	return nil
}

func jsonObject(zr *zip.Reader, name string) map[string]json.RawMessage {
	data, err := readEntry(zr, name)
	if err != nil {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	return obj
}

func hasJSONKeys(zr *zip.Reader, name string, keys ...string) bool {
	obj := jsonObject(zr, name)
	if obj == nil {
		return false
	}
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}

func hasAnyJSONKey(zr *zip.Reader, name string, keys ...string) bool {
	obj := jsonObject(zr, name)
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}
