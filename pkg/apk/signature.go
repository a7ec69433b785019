package apk

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNoSignature means the APK carries no v1 signature block
var ErrNoSignature = errors.New("no v1 signature block")

type pkcs7ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type pkcs7SignedData struct {
	Version          int
	DigestAlgorithms asn1.RawValue
	ContentInfo      asn1.RawValue
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
}

// SignatureHash returns the hex SHA-256 of the first signer certificate in
// the v1 (JAR) signature block of an APK
func SignatureHash(zr *zip.Reader) (string, error) {
	for _, f := range zr.File {
		dir, name := path.Split(f.Name)
		if dir != "META-INF/" {
			continue
		}
		switch strings.ToUpper(path.Ext(name)) {
		case ".RSA", ".DSA", ".EC":
		default:
			continue
		}

		block, err := readEntry(zr, f.Name)
		if err != nil {
			return "", err
		}
		cert, err := firstCertificate(block)
		if err != nil {
			return "", fmt.Errorf("%s: %w", f.Name, err)
		}
		sum := sha256.Sum256(cert)
		return hex.EncodeToString(sum[:]), nil
	}
	return "", ErrNoSignature
}

// firstCertificate returns the DER of the first certificate of a PKCS#7
// SignedData blob
func firstCertificate(block []byte) ([]byte, error) {
	var info pkcs7ContentInfo
	if _, err := asn1.Unmarshal(block, &info); err != nil {
		return nil, fmt.Errorf("parse content info: %w", err)
	}
	if len(info.Content.Bytes) == 0 {
		return nil, fmt.Errorf("empty signed data")
	}

	var sd pkcs7SignedData
	if _, err := asn1.Unmarshal(info.Content.Bytes, &sd); err != nil {
		return nil, fmt.Errorf("parse signed data: %w", err)
	}
	if len(sd.Certificates.Bytes) == 0 {
		return nil, fmt.Errorf("signed data holds no certificates")
	}

	var cert asn1.RawValue
	if _, err := asn1.Unmarshal(sd.Certificates.Bytes, &cert); err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert.FullBytes, nil
}
