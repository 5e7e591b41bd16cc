// Package issuance drives the end-to-end certificate workflow: one account
// registration per run, then per domain authorization, challenge
// completion, CSR submission, artifact persistence and installation.
// Domains are processed independently; one domain's failure never stops
// the rest of the run.
package issuance

import (
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/certpilot/certpilot/challenge"
	"github.com/certpilot/certpilot/models"
	"github.com/certpilot/certpilot/pki"
)

// Options is the immutable configuration for one run.
type Options struct {
	Domains            []string
	Contact            string
	AcceptTOS          bool
	TOSURI             string
	AcceptInstructions bool
	BundlePassword     string
	StoreName          string
	InstallSite        string
	InstallBinding     string
	OutDir             string
}

// CAClient is the certificate authority boundary. Satisfied by
// client.Client.
type CAClient interface {
	Register(contact string) (*models.Registration, error)
	UpdateRegistration(reg *models.Registration, contacts []string) (*models.Registration, error)
	NewAuthorization(domain string) (*models.Authorization, error)
	RequestCertificate(domain string, csr []byte) ([]byte, error)
}

type KeyGenerator interface {
	GenerateKeyPair() (*pki.KeyPair, error)
}

type CSREncoder interface {
	Encode(domain string, key *pki.KeyPair) ([]byte, error)
}

type BundleBuilder interface {
	Build(key crypto.PrivateKey, certPath, password string) (string, error)
}

type ServerInstaller interface {
	Install(certPath string, key crypto.PrivateKey, store, site, binding string) (string, error)
}

// Orchestrator composes the collaborators into the issuance workflow. All
// collaborators are injected so the state machine can be exercised without
// network or store access.
type Orchestrator struct {
	CA        CAClient
	Completer challenge.Completer
	Keys      KeyGenerator
	CSR       CSREncoder
	Bundler   BundleBuilder
	Installer ServerInstaller
	Secrets   SecretProvider
	Confirm   Confirmer

	password    string
	passwordSet bool
}

// Run executes one full issuance run. It returns an error only for
// run-level failures (registration or terms-of-service update transport
// errors); per-domain failures are recorded in the report and the run
// always processes every requested domain.
func (o *Orchestrator) Run(opts Options) (*Report, error) {
	if len(opts.Domains) == 0 {
		return nil, errors.New("no domains requested")
	}

	reg, err := o.CA.Register(opts.Contact)
	if err != nil {
		return nil, fmt.Errorf("account registration failed: %w", err)
	}
	slog.Info("Account registered", slog.String("id", reg.ID), slog.String("contact", opts.Contact))

	report := &Report{Registration: reg}

	if reg.Location != "" && opts.AcceptTOS {
		if reg.Agreement == opts.TOSURI {
			updated, err := o.CA.UpdateRegistration(reg, reg.Contacts)
			if err != nil {
				return nil, fmt.Errorf("terms-of-service update failed: %w", err)
			}
			report.Registration = updated
		} else {
			// A stale agreement blocks only the update, never the run.
			slog.Warn("Account agreement differs from expected terms, skipping update",
				slog.String("agreement", reg.Agreement), slog.String("expected", opts.TOSURI))
			report.TermsMismatch = true
		}
	}

	for _, domain := range opts.Domains {
		report.Outcomes = append(report.Outcomes, o.processDomain(domain, opts))
	}
	return report, nil
}

func (o *Orchestrator) processDomain(domain string, opts Options) DomainOutcome {
	outcome := DomainOutcome{Domain: domain, Phase: PhaseAuthorizing}
	slog.Info("Processing domain", slog.String("domain", domain))

	authz, err := o.CA.NewAuthorization(domain)
	if err != nil {
		return failed(outcome, fmt.Errorf("authorization request failed: %w", err))
	}

	outcome.Phase = PhaseChallenge
	ch, err := o.Completer.Prepare(domain, opts.InstallSite, authz)
	if err != nil {
		return failed(outcome, fmt.Errorf("challenge preparation failed: %w", err))
	}
	if ch == nil {
		return failed(outcome, errors.New("no challenge available"))
	}

	if ch.Instructions != "" {
		slog.Info("Challenge instructions", slog.String("domain", domain), slog.String("instructions", ch.Instructions))
	}
	if !opts.AcceptInstructions && !o.confirmer().Confirm(domain, ch.Instructions) {
		return failed(outcome, errors.New("challenge not confirmed"))
	}

	status, err := o.Completer.Complete(domain, ch)
	if err != nil {
		return failed(outcome, fmt.Errorf("challenge completion failed: %w", err))
	}
	if !strings.EqualFold(status, models.StatusValid) {
		return failed(outcome, fmt.Errorf("authorization status %q", status))
	}

	outcome.Phase = PhaseRequesting
	key, err := o.Keys.GenerateKeyPair()
	if err != nil {
		return failed(outcome, fmt.Errorf("key generation failed: %w", err))
	}
	csr, err := o.CSR.Encode(domain, key)
	if err != nil {
		return failed(outcome, fmt.Errorf("CSR encoding failed: %w", err))
	}
	certBytes, err := o.CA.RequestCertificate(domain, csr)
	if err != nil {
		return failed(outcome, fmt.Errorf("certificate request failed: %w", err))
	}

	outcome.Phase = PhasePersisting
	certPath := pki.CertPath(opts.OutDir, domain)
	if err := os.WriteFile(certPath, certBytes, 0o644); err != nil {
		return failed(outcome, fmt.Errorf("failed to persist certificate: %w", err))
	}
	outcome.CertificateFile = certPath

	// A failed bundle is recorded but does not block installation: the
	// installer works from the persisted artifact and the in-memory key.
	outcome.Phase = PhaseBundling
	if password, err := o.bundlePassword(opts); err != nil {
		slog.Error("Failed to obtain bundle password", slog.String("domain", domain), slog.Any("error", err))
		outcome.BundleError = err.Error()
	} else if path, err := o.Bundler.Build(key.Private, certPath, password); err != nil {
		slog.Error("Key bundle build failed", slog.String("domain", domain), slog.Any("error", err))
		outcome.BundleError = err.Error()
	} else {
		outcome.BundleFile = path
	}

	outcome.Phase = PhaseInstalling
	handle, err := o.Installer.Install(certPath, key.Private, opts.StoreName, opts.InstallSite, opts.InstallBinding)
	if err != nil {
		return failed(outcome, fmt.Errorf("installation failed: %w", err))
	}
	outcome.Thumbprint = handle
	outcome.Phase = PhaseInstalled
	slog.Info("Domain finished", slog.String("domain", domain), slog.String("thumbprint", handle))
	return outcome
}

// bundlePassword resolves the bundle password once per run: from the
// options when set, otherwise from the secret provider.
func (o *Orchestrator) bundlePassword(opts Options) (string, error) {
	if opts.BundlePassword != "" {
		return opts.BundlePassword, nil
	}
	if o.passwordSet {
		return o.password, nil
	}
	password, err := o.Secrets.ObtainBundlePassword()
	if err != nil {
		return "", err
	}
	o.password = password
	o.passwordSet = true
	return password, nil
}

func (o *Orchestrator) confirmer() Confirmer {
	if o.Confirm == nil {
		return AutoConfirm{}
	}
	return o.Confirm
}

func failed(outcome DomainOutcome, err error) DomainOutcome {
	slog.Error("Domain failed", slog.String("domain", outcome.Domain), slog.String("phase", string(outcome.Phase)), slog.Any("error", err))
	outcome.Error = err.Error()
	return outcome
}
