package challenge

import (
	"log/slog"
	"strings"

	"github.com/certpilot/certpilot/dns"
	"github.com/certpilot/certpilot/models"
)

const defaultRecordPrefix = "_pki-validation."

// DNSTxt publishes the challenge token as a TXT record via RFC2136 dynamic
// updates.
type DNSTxt struct {
	Provider  *dns.Provider
	Finalizer Finalizer
}

func recordName(domain string, ch *models.Challenge) string {
	if ch.Target != "" {
		return ch.Target
	}
	return defaultRecordPrefix + domain
}

func (d *DNSTxt) Prepare(domain, site string, authz *models.Authorization) (*models.Challenge, error) {
	ch := findChallenge(authz, TypeDNS)
	if ch == nil {
		return nil, nil
	}
	if !d.Provider.Configured(domain) {
		slog.Warn("No DNS zone configured for domain", slog.String("domain", domain))
		return nil, nil
	}

	name := recordName(domain, ch)

	// Drop stale validation records from earlier runs before inserting.
	if records, err := d.Provider.LookupTxt(name); err == nil {
		for _, record := range records {
			if strings.HasPrefix(record, "pki-validation=") {
				if err := d.Provider.DeleteTxt(domain, name, record); err != nil {
					slog.Warn("Failed to remove stale TXT record", slog.String("domain", domain), slog.Any("error", err))
				}
			}
		}
	}

	if err := d.Provider.AddTxt(domain, name, "pki-validation="+ch.Token); err != nil {
		return nil, err
	}
	slog.Info("Challenge TXT record published", slog.String("domain", domain), slog.String("name", name))
	return ch, nil
}

func (d *DNSTxt) Complete(domain string, ch *models.Challenge) (string, error) {
	status, err := d.Finalizer.FinalizeChallenge(domain, ch.Token)
	if err != nil {
		return "", err
	}

	name := recordName(domain, ch)
	if err := d.Provider.DeleteTxt(domain, name, "pki-validation="+ch.Token); err != nil {
		slog.Warn("Failed to remove TXT record", slog.String("domain", domain), slog.Any("error", err))
	}
	return status, nil
}
