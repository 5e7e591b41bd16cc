package pki

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
)

const pemBlockCSR = "CERTIFICATE REQUEST"

// Encoder serializes a domain plus key pair into a PEM encoded PKCS#10
// certificate request.
type Encoder struct{}

func (Encoder) Encode(domain string, key *KeyPair) ([]byte, error) {
	template := x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: domain},
		DNSNames: []string{domain},
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, &template, key.Private)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSR: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemBlockCSR, Bytes: der}), nil
}

func ParseCSR(csr []byte) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(csr)
	if block == nil || block.Type != pemBlockCSR {
		return nil, errors.New("failed to decode PEM block containing CSR")
	}
	parsed, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSR: %w", err)
	}
	if err := parsed.CheckSignature(); err != nil {
		return nil, fmt.Errorf("CSR signature is invalid: %w", err)
	}
	return parsed, nil
}
