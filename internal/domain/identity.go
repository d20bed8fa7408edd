package domain

import "strings"

// Identity names the requester of a ticket or emergency. Exactly one of UserID
// or GuestToken is set; both namespaces share the one-active-ticket rule.
type Identity struct {
	UserID     string
	GuestToken string
}

// UserIdentity returns an identity for an authenticated user.
func UserIdentity(userID string) Identity {
	return Identity{UserID: userID}
}

// GuestIdentity returns an identity for an anonymous guest token.
func GuestIdentity(token string) Identity {
	return Identity{GuestToken: token}
}

// Validate enforces mutual exclusion of the two namespaces.
func (i Identity) Validate() error {
	hasUser := strings.TrimSpace(i.UserID) != ""
	hasGuest := strings.TrimSpace(i.GuestToken) != ""
	if hasUser == hasGuest {
		return ErrInvalidIdentity
	}
	return nil
}

// IsGuest reports whether the identity is an anonymous guest.
func (i Identity) IsGuest() bool {
	return i.GuestToken != ""
}

// Key is the namespaced lookup key used for locks, indexes and event scopes.
func (i Identity) Key() string {
	if i.IsGuest() {
		return "guest:" + i.GuestToken
	}
	return "user:" + i.UserID
}
