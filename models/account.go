package models

import "time"

// Registration is the account state held by the CA for one contact.
// Location is the CA-side reference to the account resource; it is empty
// until the CA has persisted the account.
type Registration struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Contacts  []string  `json:"contacts"`
	Agreement string    `json:"agreement"`
	Location  string    `json:"location"`
}

type RegisterRequest struct {
	Contact string `json:"contact"`
}

type UpdateAccountRequest struct {
	Contacts  []string `json:"contacts"`
	Agreement string   `json:"agreement"`
}
