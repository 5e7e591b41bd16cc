package pki

import "path/filepath"

const CertExt = ".crt"

// CertPath derives the certificate artifact path for a domain. The name
// depends only on the domain string so a rerun overwrites instead of
// accumulating files.
func CertPath(dir, domain string) string {
	return filepath.Join(dir, domain+CertExt)
}

// BundlePath derives the key bundle path for a domain.
func BundlePath(dir, domain string) string {
	return filepath.Join(dir, domain+BundleExt)
}
