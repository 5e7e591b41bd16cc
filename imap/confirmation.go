package imap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
)

const (
	validationSubject = "Domain Validation"
	pollInterval      = 5 * time.Second
)

var confirmationLinkRegex = regexp.MustCompile(`https?://\S+/confirm/\S+`)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Debug    bool
	Timeout  time.Duration
}

// FetchConfirmationLink polls the mailbox for the CA's validation mail for
// the given domain and returns the confirmation link it carries. When
// multiple mails match, the newest wins.
func FetchConfirmationLink(cfg Config, since time.Time, domain string) (string, error) {
	options := imapclient.Options{}
	if cfg.Debug {
		options.DebugWriter = os.Stderr
	}
	c, err := imapclient.DialTLS(fmt.Sprintf("%s:%v", cfg.Host, cfg.Port), &options)
	if err != nil {
		return "", err
	}
	if err := c.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		return "", fmt.Errorf("mailbox login failed: %w", err)
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", nil).Wait(); err != nil {
		return "", err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	deadline := time.Now().Add(timeout)

	for {
		link, found, err := searchOnce(c, since, domain)
		if err != nil {
			return "", err
		}
		if found {
			return link, nil
		}
		if time.Now().After(deadline) {
			return "", errors.New("timed out waiting for validation mail")
		}
		slog.Info("No validation mail yet, waiting", slog.String("domain", domain))
		time.Sleep(pollInterval)
	}
}

func searchOnce(c *imapclient.Client, since time.Time, domain string) (string, bool, error) {
	mails, err := c.Search(&imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: validationSubject}},
	}, nil).Wait()
	if err != nil {
		return "", false, err
	}
	if len(mails.AllSeqNums()) == 0 {
		return "", false, nil
	}

	fetchOptions := &imap.FetchOptions{
		Flags:       true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	msgs, err := c.Fetch(mails.All, fetchOptions).Collect()
	if err != nil {
		return "", false, err
	}

	var link string
	var linkDate time.Time
	for _, m := range msgs {
		if m.Envelope.Date.Before(since) {
			continue
		}
		for _, p := range m.BodySection {
			candidate, err := extractLink(p.Bytes, domain)
			if err != nil || candidate == "" {
				continue
			}
			if link == "" || m.Envelope.Date.After(linkDate) {
				link = candidate
				linkDate = m.Envelope.Date
			}
		}
	}
	return link, link != "", nil
}

func extractLink(raw []byte, domain string) (string, error) {
	body, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	for {
		part, err := body.NextPart()
		if err != nil {
			break
		}
		if _, ok := part.Header.(*mail.InlineHeader); !ok {
			continue
		}
		b, _ := io.ReadAll(part.Body)
		text := string(b)
		if !strings.Contains(text, domain) {
			continue
		}
		if match := confirmationLinkRegex.FindString(text); match != "" {
			return strings.TrimRight(match, ".,;"), nil
		}
	}
	return "", nil
}
