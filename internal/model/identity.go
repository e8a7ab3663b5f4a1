package model

import "fmt"

// IdentityKind discriminates the tracking dimension an identity belongs to.
type IdentityKind string

const (
	IdentityUser    IdentityKind = "user"
	IdentitySession IdentityKind = "session"
	IdentityAPIKey  IdentityKind = "apikey"
)

// Identity is the subject usage is tracked against: a registered user, an
// anonymous session (session id + hashed IP), or an API key.
type Identity struct {
	Kind   IdentityKind `json:"kind"`
	ID     string       `json:"id"`
	IPHash string       `json:"ip_hash,omitempty"` // anonymous sessions only
}

// CounterKey returns the ledger row key for this identity under the given
// isolation key (scope or page identifier). The same identity under two
// isolation keys accrues two independent counters.
func (i Identity) CounterKey(isolationKey string) string {
	if i.Kind == IdentitySession {
		return fmt.Sprintf("%s:%s:%s|%s", i.Kind, i.ID, i.IPHash, isolationKey)
	}
	return fmt.Sprintf("%s:%s|%s", i.Kind, i.ID, isolationKey)
}

// IsAnonymous reports whether the identity is an unauthenticated session.
func (i Identity) IsAnonymous() bool {
	return i.Kind == IdentitySession
}
