package challenge

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/certpilot/certpilot/imap"
	"github.com/certpilot/certpilot/models"
)

// Email proves control by following the confirmation link the CA mails to
// the domain contact. The mailbox is read over IMAP.
type Email struct {
	Mailbox   imap.Config
	Finalizer Finalizer
	Insecure  bool

	prepared time.Time
}

func (e *Email) Prepare(domain, site string, authz *models.Authorization) (*models.Challenge, error) {
	ch := findChallenge(authz, TypeEmail)
	if ch == nil {
		return nil, nil
	}
	// The CA sends the mail when the authorization is created; remember the
	// cutoff so older validation mails are ignored.
	e.prepared = time.Now().Add(-time.Minute)
	slog.Info("Waiting for validation mail", slog.String("domain", domain), slog.String("mailbox", e.Mailbox.Username))
	return ch, nil
}

func (e *Email) Complete(domain string, ch *models.Challenge) (string, error) {
	link, err := imap.FetchConfirmationLink(e.Mailbox, e.prepared, domain)
	if err != nil {
		return "", err
	}

	r := resty.New()
	if e.Insecure {
		r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	resp, err := r.R().Get(link)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("confirmation link returned status %d", resp.StatusCode())
	}
	slog.Info("Confirmation link followed", slog.String("domain", domain))

	return e.Finalizer.FinalizeChallenge(domain, ch.Token)
}
