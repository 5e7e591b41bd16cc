package models

const (
	StatusPending = "pending"
	StatusValid   = "valid"
	StatusInvalid = "invalid"
)

// Authorization is the proof-of-control ticket the CA issues for one domain.
type Authorization struct {
	Domain     string      `json:"domain"`
	Status     string      `json:"status"`
	Challenges []Challenge `json:"challenges"`
}

// Challenge describes one proof mechanism offered by the CA.
// Target carries the mechanism-specific location (URL path, record name or
// mailbox) and Instructions the human-readable steps shown before
// finalization.
type Challenge struct {
	Type         string `json:"type"`
	Token        string `json:"token"`
	Target       string `json:"target"`
	Instructions string `json:"instructions"`
}

type AuthorizationRequest struct {
	Domain string `json:"domain"`
}

type FinalizeRequest struct {
	Domain string `json:"domain"`
	Token  string `json:"token"`
}

type FinalizeResponse struct {
	Status string `json:"status"`
}
