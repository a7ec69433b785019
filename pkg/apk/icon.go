package apk

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/png"
	"path"
	"strings"

	"github.com/nfnt/resize"
	abapk "github.com/shogo82148/androidbinary/apk"
	"golang.org/x/image/webp"
)

// IconSize is the edge length icons are scaled to
const IconSize = 144

var iconPriorities = []string{
	"res/mipmap-xxxhdpi/ic_launcher.png",
	"res/mipmap-xxhdpi/ic_launcher.png",
	"res/mipmap-xhdpi/ic_launcher.png",
	"res/mipmap-hdpi/ic_launcher.png",
	"res/drawable-xxxhdpi/ic_launcher.png",
	"res/drawable-xxhdpi/ic_launcher.png",
	"res/drawable-xhdpi/ic_launcher.png",
	"res/drawable-hdpi/ic_launcher.png",
	"res/mipmap-xxxhdpi/ic_launcher.webp",
	"res/mipmap-xxhdpi/ic_launcher.webp",
	"res/mipmap-xhdpi/ic_launcher.webp",
	"res/mipmap-hdpi/ic_launcher.webp",
}

// IconExtractor produces a square PNG thumbnail of the launcher icon
type IconExtractor struct {
	targetSize uint
}

// NewIconExtractor creates an extractor scaling to IconSize
func NewIconExtractor() *IconExtractor {
	return &IconExtractor{targetSize: IconSize}
}

// Extract looks up the launcher icon in the APK at apkPath. Well-known
// resource paths are tried first, then any launcher-named bitmap, then
// the icon androidbinary resolves through the resource table.
func (e *IconExtractor) Extract(apkPath string) ([]byte, error) {
	reader, err := zip.OpenReader(apkPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open APK: %w", err)
	}
	defer reader.Close()

	if data, err := e.fromZip(&reader.Reader); err == nil {
		return data, nil
	}

	pkg, err := abapk.OpenFile(apkPath)
	if err != nil {
		return nil, fmt.Errorf("no launcher icon found in APK: %w", err)
	}
	defer pkg.Close()

	img, err := pkg.Icon(nil)
	if err != nil {
		return nil, fmt.Errorf("no launcher icon found in APK: %w", err)
	}
	return e.encode(img)
}

func (e *IconExtractor) fromZip(zr *zip.Reader) ([]byte, error) {
	for _, name := range iconPriorities {
		if data, err := readEntry(zr, name); err == nil {
			return e.process(data, path.Ext(name))
		}
	}

	for _, f := range zr.File {
		name := f.Name
		if !strings.Contains(name, "ic_launcher") ||
			strings.Contains(name, "_foreground") || strings.Contains(name, "_background") {
			continue
		}
		ext := path.Ext(name)
		if ext != ".png" && ext != ".webp" {
			continue
		}
		data, err := readEntry(zr, name)
		if err != nil {
			continue
		}
		return e.process(data, ext)
	}

	return nil, fmt.Errorf("no launcher icon found in APK")
}

func (e *IconExtractor) process(data []byte, ext string) ([]byte, error) {
	var img image.Image
	var err error

	if ext == ".webp" {
		img, err = webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode webp: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
	}
	return e.encode(img)
}

func (e *IconExtractor) encode(img image.Image) ([]byte, error) {
	resized := resize.Resize(e.targetSize, e.targetSize, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractBytes decodes a standalone icon file such as the icon.png shipped
// next to the APKs of an XAPK or APKM
func (e *IconExtractor) ExtractBytes(data []byte, name string) ([]byte, error) {
	return e.process(data, path.Ext(name))
}
