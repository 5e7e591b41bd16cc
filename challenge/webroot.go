package challenge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/certpilot/certpilot/models"
)

const wellKnownDir = ".well-known/pki-validation"

// Webroot serves the challenge token as a file below the web root of the
// site being certified.
type Webroot struct {
	Root      string
	Finalizer Finalizer
}

func (w *Webroot) Prepare(domain, site string, authz *models.Authorization) (*models.Challenge, error) {
	ch := findChallenge(authz, TypeHTTP)
	if ch == nil {
		return nil, nil
	}

	dir := filepath.Join(w.Root, wellKnownDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create challenge directory: %w", err)
	}
	path := filepath.Join(dir, ch.Token+".txt")
	if err := os.WriteFile(path, []byte(ch.Token), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write challenge token: %w", err)
	}
	slog.Info("Challenge token placed", slog.String("domain", domain), slog.String("site", site), slog.String("path", path))
	return ch, nil
}

func (w *Webroot) Complete(domain string, ch *models.Challenge) (string, error) {
	status, err := w.Finalizer.FinalizeChallenge(domain, ch.Token)
	if err != nil {
		return "", err
	}

	// The token file is only needed while the CA verifies.
	path := filepath.Join(w.Root, wellKnownDir, ch.Token+".txt")
	if err := os.Remove(path); err != nil {
		slog.Warn("Failed to remove challenge token", slog.String("path", path), slog.Any("error", err))
	}
	return status, nil
}
