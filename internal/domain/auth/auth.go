// Package auth classifies caller identities for the dispatch layer.
//
// The core itself performs no authorization: it trusts whatever the
// dispatch layer decided. This package is the pure predicate the dispatch
// layer consults, built from the configured admin and allow lists.
package auth

import "crypto/subtle"

// Role is the outcome of classifying a caller.
type Role int

const (
	RoleNone Role = iota
	RoleAllowed
	RoleAdmin
)

// String returns the role's name.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleAllowed:
		return "allowed"
	default:
		return "none"
	}
}

// Authorizer classifies caller tokens against the configured lists.
type Authorizer struct {
	admins  []string
	allowed []string
}

// New creates an authorizer. Admins are implicitly allowed.
func New(admins, allowed []string) *Authorizer {
	return &Authorizer{admins: admins, allowed: allowed}
}

// Classify returns the caller's role. Comparison is constant-time so token
// checking leaks nothing about list contents.
func (a *Authorizer) Classify(token string) Role {
	if token == "" {
		return RoleNone
	}
	if contains(a.admins, token) {
		return RoleAdmin
	}
	if contains(a.allowed, token) {
		return RoleAllowed
	}
	return RoleNone
}

func contains(list []string, token string) bool {
	found := false
	for _, entry := range list {
		if len(entry) == len(token) &&
			subtle.ConstantTimeCompare([]byte(entry), []byte(token)) == 1 {
			found = true
		}
	}
	return found
}
