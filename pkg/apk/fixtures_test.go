package apk

import (
	"archive/zip"
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type zipEntry struct {
	name string
	data []byte
}

func zipBytes(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = f.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zipReader(t *testing.T, entries ...zipEntry) *zip.Reader {
	t.Helper()
	data := zipBytes(t, entries...)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return zr
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0644))
	return p
}

// jsonParser reads a JSON encoded Manifest stored as AndroidManifest.xml,
// standing in for compiled binary XML
type jsonParser struct{}

func (jsonParser) GetParserInfo() ParserInfo {
	return ParserInfo{Name: "json", Available: true}
}

func (jsonParser) CanParse(string) bool { return true }

func (jsonParser) ParseManifest(path string) (*Manifest, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := readEntry(&r.Reader, "AndroidManifest.xml")
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func manifestEntry(t *testing.T, m Manifest) zipEntry {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	return zipEntry{"AndroidManifest.xml", data}
}

func apkBytes(t *testing.T, m Manifest, extra ...zipEntry) []byte {
	t.Helper()
	return zipBytes(t, append([]zipEntry{manifestEntry(t, m)}, extra...)...)
}

func pngBytes(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for x := 0; x < size; x++ {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func derElement(t *testing.T, class, tag int, content ...[]byte) []byte {
	t.Helper()
	b, err := asn1.Marshal(asn1.RawValue{Class: class, Tag: tag, IsCompound: true, Bytes: bytes.Join(content, nil)})
	require.NoError(t, err)
	return b
}

// signatureBlock builds a minimal PKCS#7 SignedData carrying one
// self-signed certificate and returns it with the expected hash
func signatureBlock(t *testing.T) ([]byte, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "installerx test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	version, err := asn1.Marshal(1)
	require.NoError(t, err)
	oidData, err := asn1.Marshal(asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1})
	require.NoError(t, err)
	oidSigned, err := asn1.Marshal(asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2})
	require.NoError(t, err)

	signed := derElement(t, asn1.ClassUniversal, asn1.TagSequence,
		version,
		derElement(t, asn1.ClassUniversal, asn1.TagSet),
		derElement(t, asn1.ClassUniversal, asn1.TagSequence, oidData),
		derElement(t, asn1.ClassContextSpecific, 0, der),
		derElement(t, asn1.ClassUniversal, asn1.TagSet),
	)
	block := derElement(t, asn1.ClassUniversal, asn1.TagSequence,
		oidSigned,
		derElement(t, asn1.ClassContextSpecific, 0, signed),
	)

	sum := sha256.Sum256(der)
	return block, hex.EncodeToString(sum[:])
}
