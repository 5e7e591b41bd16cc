package pki

import (
	"crypto"
	"errors"
	"fmt"
	"os"
	"strings"

	"software.sslmate.com/src/go-pkcs12"
)

const BundleExt = ".pfx"

// BundleBuilder packs a private key and the persisted certificate into a
// password-protected PKCS#12 file next to the certificate artifact.
type BundleBuilder struct{}

// Build reads the certificate chain at certPath and writes
// <certPath without ext>.pfx. The bundle is the only place the private key
// is ever persisted.
func (BundleBuilder) Build(key crypto.PrivateKey, certPath, password string) (string, error) {
	if password == "" {
		return "", errors.New("bundle password must not be empty")
	}

	raw, err := os.ReadFile(certPath)
	if err != nil {
		return "", fmt.Errorf("failed to read certificate artifact: %w", err)
	}
	certs, err := ParseCertificates(raw)
	if err != nil {
		return "", err
	}
	if len(certs) == 0 {
		return "", fmt.Errorf("no certificate found in %s", certPath)
	}

	pfx, err := pkcs12.Legacy.Encode(key, certs[0], certs[1:], password)
	if err != nil {
		return "", fmt.Errorf("failed to encode key bundle: %w", err)
	}

	path := strings.TrimSuffix(certPath, CertExt) + BundleExt
	if err := os.WriteFile(path, pfx, 0o600); err != nil {
		return "", fmt.Errorf("failed to write key bundle: %w", err)
	}
	return path, nil
}
