package issuance

import "github.com/certpilot/certpilot/models"

// Phase names the furthest step a domain reached during a run.
type Phase string

const (
	PhaseAuthorizing Phase = "authorizing"
	PhaseChallenge   Phase = "challenge"
	PhaseRequesting  Phase = "requesting"
	PhasePersisting  Phase = "persisting"
	PhaseBundling    Phase = "bundling"
	PhaseInstalling  Phase = "installing"
	PhaseInstalled   Phase = "installed"
)

// DomainOutcome records what happened to one domain. Error is empty on
// success; BundleError is kept separate because a failed bundle does not
// fail the domain.
type DomainOutcome struct {
	Domain          string `json:"domain"`
	Phase           Phase  `json:"phase"`
	Error           string `json:"error,omitempty"`
	BundleError     string `json:"bundleError,omitempty"`
	CertificateFile string `json:"certificateFile,omitempty"`
	BundleFile      string `json:"bundleFile,omitempty"`
	Thumbprint      string `json:"thumbprint,omitempty"`
}

func (d DomainOutcome) Succeeded() bool {
	return d.Error == ""
}

// Report is the machine-readable result of one run.
type Report struct {
	Registration  *models.Registration `json:"registration"`
	TermsMismatch bool                 `json:"termsMismatch,omitempty"`
	Outcomes      []DomainOutcome      `json:"outcomes"`
}

// Failed counts the domains that did not reach installation.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			n++
		}
	}
	return n
}
