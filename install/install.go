// Package install places an issued certificate and its key into the local
// server's certificate store and binds it to a named site.
package install

import (
	"crypto"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/certpilot/certpilot/pki"
)

// Installer mutates the store directory and the bindings file. Both are
// shared resources, so every install runs under the same lock.
type Installer struct {
	StoreDir     string
	BindingsFile string
	PostCommand  string

	mu sync.Mutex
}

type bindingsFile struct {
	Sites map[string]siteBinding `yaml:"sites"`
}

type siteBinding struct {
	Binding     string `yaml:"binding"`
	Certificate string `yaml:"certificate"`
	Key         string `yaml:"key"`
	Thumbprint  string `yaml:"thumbprint"`
}

// Install copies the certificate artifact and key into the named store and
// rebinds the site to the new material. It returns the leaf certificate's
// thumbprint as the store handle.
func (i *Installer) Install(certPath string, key crypto.PrivateKey, store, site, binding string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	raw, err := os.ReadFile(certPath)
	if err != nil {
		return "", fmt.Errorf("failed to read certificate artifact: %w", err)
	}
	certs, err := pki.ParseCertificates(raw)
	if err != nil {
		return "", err
	}
	if len(certs) == 0 {
		return "", fmt.Errorf("no certificate found in %s", certPath)
	}

	sum := sha1.Sum(certs[0].Raw)
	thumbprint := hex.EncodeToString(sum[:])

	storeDir := filepath.Join(i.StoreDir, store)
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create store directory: %w", err)
	}

	installedCert := filepath.Join(storeDir, thumbprint+".crt")
	if err := os.WriteFile(installedCert, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to install certificate: %w", err)
	}

	keyPEM, err := pki.MarshalPrivateKey(key)
	if err != nil {
		return "", err
	}
	installedKey := filepath.Join(storeDir, thumbprint+".key")
	if err := os.WriteFile(installedKey, keyPEM, 0o600); err != nil {
		return "", fmt.Errorf("failed to install private key: %w", err)
	}

	if err := i.bind(site, siteBinding{
		Binding:     binding,
		Certificate: installedCert,
		Key:         installedKey,
		Thumbprint:  thumbprint,
	}); err != nil {
		return "", err
	}

	if i.PostCommand != "" {
		out, err := exec.Command("sh", "-c", i.PostCommand).CombinedOutput()
		if err != nil {
			return "", fmt.Errorf("post-install command failed: %w: %s", err, string(out))
		}
		slog.Info("Post-install command finished", slog.String("site", site))
	}

	slog.Info("Certificate installed", slog.String("site", site), slog.String("thumbprint", thumbprint))
	return thumbprint, nil
}

func (i *Installer) bind(site string, sb siteBinding) error {
	var bindings bindingsFile
	if data, err := os.ReadFile(i.BindingsFile); err == nil {
		if err := yaml.Unmarshal(data, &bindings); err != nil {
			return fmt.Errorf("failed to parse bindings file: %w", err)
		}
	}
	if bindings.Sites == nil {
		bindings.Sites = map[string]siteBinding{}
	}
	bindings.Sites[site] = sb

	data, err := yaml.Marshal(&bindings)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(i.BindingsFile), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(i.BindingsFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write bindings file: %w", err)
	}
	return nil
}
