package pki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const (
	pemBlockCert         = "CERTIFICATE"
	pemBlockPrivateKey1  = "RSA PRIVATE KEY"
	pemBlockECPrivateKey = "EC PRIVATE KEY"

	// maxChainLen bounds how many certificates a single artifact may carry.
	maxChainLen = 11
)

func MarshalPrivateKey(k crypto.PrivateKey) ([]byte, error) {
	var keyType string
	var keyBytes []byte
	var err error

	switch k := k.(type) {
	case *ecdsa.PrivateKey:
		keyBytes, err = x509.MarshalECPrivateKey(k)
		keyType = pemBlockECPrivateKey
	case *rsa.PrivateKey:
		keyBytes = x509.MarshalPKCS1PrivateKey(k)
		keyType = pemBlockPrivateKey1
	default:
		return nil, fmt.Errorf("unsupported key type %T", k)
	}
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: keyType, Bytes: keyBytes}), nil
}

// ParseCertificates decodes up to maxChainLen PEM certificates, leaf first.
func ParseCertificates(b []byte) ([]*x509.Certificate, error) {
	rest := b
	certs := []*x509.Certificate{}

	for i := 0; i < maxChainLen; i++ {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != pemBlockCert {
			return nil, fmt.Errorf("got unexpected block type %q for certificate", block.Type)
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("error parsing certificate: %w", err)
		}
		certs = append(certs, c)
	}

	return certs, nil
}

func EncodeCertificates(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, c := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: pemBlockCert, Bytes: c.Raw})...)
	}
	return out
}
