// Package challenge contains the completers that perform the side effect a
// CA challenge asks for and report the resulting authorization status.
package challenge

import "github.com/certpilot/certpilot/models"

const (
	TypeHTTP  = "http"
	TypeDNS   = "dns"
	TypeEmail = "email"
)

// Finalizer tells the CA a challenge side effect is in place. Satisfied by
// client.Client.
type Finalizer interface {
	FinalizeChallenge(domain, token string) (string, error)
}

// Completer proves control of a domain. Prepare performs the side effect for
// the first challenge it can act on and returns its descriptor, or (nil, nil)
// when the authorization offers nothing actionable. Complete asks the CA to
// verify and returns the authorization status.
type Completer interface {
	Prepare(domain, site string, authz *models.Authorization) (*models.Challenge, error)
	Complete(domain string, ch *models.Challenge) (string, error)
}

func findChallenge(authz *models.Authorization, typ string) *models.Challenge {
	for i := range authz.Challenges {
		if authz.Challenges[i].Type == typ {
			return &authz.Challenges[i]
		}
	}
	return nil
}
