package client

import (
	"encoding/pem"

	"github.com/certpilot/certpilot/models"
	"github.com/certpilot/certpilot/pki"
)

// Register creates or fetches the account for the given contact. The CA
// returns the existing account when the contact is already known.
func (c *Client) Register(contact string) (*models.Registration, error) {
	if err := c.SessionRefresh(false); err != nil {
		return nil, err
	}
	c.loginLock.RLock()
	defer c.loginLock.RUnlock()
	var reg models.Registration
	resp, err := c.client.R().
		SetHeader("Content-Type", ApplicationJson).
		ExpectContentType(ApplicationJson).
		SetResult(&reg).
		SetBody(models.RegisterRequest{Contact: contact}).
		Post(c.baseURL + RegisterAccountPath)
	if err != nil {
		return nil, err
	}
	if err := checkJSON(resp); err != nil {
		return nil, err
	}
	return &reg, nil
}

// UpdateRegistration refreshes the account's contact list and agreement.
func (c *Client) UpdateRegistration(reg *models.Registration, contacts []string) (*models.Registration, error) {
	if err := c.SessionRefresh(false); err != nil {
		return nil, err
	}
	c.loginLock.RLock()
	defer c.loginLock.RUnlock()
	var updated models.Registration
	resp, err := c.client.R().
		SetHeader("Content-Type", ApplicationJson).
		ExpectContentType(ApplicationJson).
		SetResult(&updated).
		SetBody(models.UpdateAccountRequest{Contacts: contacts, Agreement: reg.Agreement}).
		Post(c.baseURL + UpdateAccountPath)
	if err != nil {
		return nil, err
	}
	if err := checkJSON(resp); err != nil {
		return nil, err
	}
	return &updated, nil
}

// NewAuthorization asks the CA for a fresh proof-of-control ticket.
func (c *Client) NewAuthorization(domain string) (*models.Authorization, error) {
	if err := c.SessionRefresh(false); err != nil {
		return nil, err
	}
	c.loginLock.RLock()
	defer c.loginLock.RUnlock()
	var authz models.Authorization
	resp, err := c.client.R().
		SetHeader("Content-Type", ApplicationJson).
		ExpectContentType(ApplicationJson).
		SetResult(&authz).
		SetBody(models.AuthorizationRequest{Domain: domain}).
		Post(c.baseURL + NewAuthorizationPath)
	if err != nil {
		return nil, err
	}
	if err := checkJSON(resp); err != nil {
		return nil, err
	}
	return &authz, nil
}

// FinalizeChallenge tells the CA the challenge side effect is in place and
// returns the resulting authorization status.
func (c *Client) FinalizeChallenge(domain, token string) (string, error) {
	if err := c.SessionRefresh(false); err != nil {
		return "", err
	}
	c.loginLock.RLock()
	defer c.loginLock.RUnlock()
	var result models.FinalizeResponse
	resp, err := c.client.R().
		SetHeader("Content-Type", ApplicationJson).
		ExpectContentType(ApplicationJson).
		SetResult(&result).
		SetBody(models.FinalizeRequest{Domain: domain, Token: token}).
		Post(c.baseURL + FinalizeChallengePath)
	if err != nil {
		return "", err
	}
	if err := checkJSON(resp); err != nil {
		return "", err
	}
	return result.Status, nil
}

// RequestCertificate submits a PEM CSR and returns the issued certificate
// bytes, leaf first, issuer chain appended.
func (c *Client) RequestCertificate(domain string, csr []byte) ([]byte, error) {
	if err := c.SessionRefresh(false); err != nil {
		return nil, err
	}
	c.loginLock.RLock()
	defer c.loginLock.RUnlock()

	// Reject malformed CSRs before they reach the CA.
	parsed, err := pki.ParseCSR(csr)
	if err != nil {
		return nil, err
	}
	csr = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: parsed.Raw})

	var cert models.CertificateResponse
	resp, err := c.client.R().
		SetHeader("Content-Type", ApplicationJson).
		ExpectContentType(ApplicationJson).
		SetResult(&cert).
		SetBody(models.CertificateRequest{Domain: domain, CSR: string(csr)}).
		Post(c.baseURL + RequestCertificatePath)
	if err != nil {
		return nil, err
	}
	if err := checkJSON(resp); err != nil {
		return nil, err
	}
	return []byte(cert.Certificate + cert.IssuerCertificate), nil
}
