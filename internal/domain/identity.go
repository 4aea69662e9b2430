// Package domain contains core types shared by the auth form, the identity
// backends and the shells.
//
// This file defines the collaborator-owned records: the session returned by a
// successful sign-in or sign-up, and the player profile provisioned after
// sign-up.
package domain

import "time"

// Messages reported by identity backends. They match the wording of the
// hosted identity service so every backend produces the same display codes.
const (
	MsgInvalidCredentials = "Invalid login credentials"
	MsgAlreadyRegistered  = "User already registered"
)

// Session is the result of a successful sign-in or sign-up.
//
// IdentityID may be empty: some identity services do not return the user on
// sign-up until the email address has been confirmed.
type Session struct {
	IdentityID  string
	Email       string
	AccessToken string // Never log this
	ExpiresAt   *time.Time
}

// SignUpParams contains the parameters for registering a new identity.
type SignUpParams struct {
	Email    string
	Password string
	Username string // Stored as identity metadata
}

// Profile is the per-identity record created after a successful sign-up.
type Profile struct {
	ID         string
	Username   string
	Wins       int
	Losses     int
	TotalScore int
}

// NewProfile returns a fresh profile with all counters at zero.
func NewProfile(id, username string) Profile {
	return Profile{
		ID:       id,
		Username: username,
	}
}
