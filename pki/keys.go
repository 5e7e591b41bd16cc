package pki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
)

// KeyPair holds freshly generated key material for exactly one certificate.
// The private part must never leave the process unencrypted; it is either
// packed into a password-protected bundle or discarded with the run.
type KeyPair struct {
	Private crypto.Signer
}

func (k *KeyPair) Public() crypto.PublicKey {
	return k.Private.Public()
}

// Generator produces a new KeyPair per call. Type selects the algorithm;
// an empty Type means RSA2048.
type Generator struct {
	Type string
}

func (g Generator) GenerateKeyPair() (*KeyPair, error) {
	var signer crypto.Signer
	var err error
	switch g.Type {
	case "EC256":
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "EC384":
		signer, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case "RSA4096":
		signer, err = rsa.GenerateKey(rand.Reader, 4096)
	case "", "RSA2048":
		signer, err = rsa.GenerateKey(rand.Reader, 2048)
	default:
		return nil, fmt.Errorf("unsupported key type %q", g.Type)
	}
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: signer}, nil
}
