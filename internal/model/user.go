// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// User represents an account that can authenticate with a password, a
// federated identity, or both.
//
// OPTIONAL FIELDS:
// PasswordHash, FederatedID and OTPCode use the empty string as "absent".
// Stores translate the empty string to NULL (SQL) or an omitted key (Mongo)
// so the unique indexes on federated_id only apply when a value is present.
// OTPExpiresAt is a pointer because the zero time is a valid timestamp.
//
// The json tags only cover fields that are safe to return to a client.
// PasswordHash and the OTP never leave the server.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	FederatedID  string     `json:"-"`
	IsVerified   bool       `json:"isVerified"`
	OTPCode      string     `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// HasFederatedID reports whether the account is linked to an external provider.
func (u *User) HasFederatedID() bool {
	return u.FederatedID != ""
}

// SetOTP opens a verification window. Code and expiry are always set together.
func (u *User) SetOTP(code string, expiresAt time.Time) {
	u.OTPCode = code
	u.OTPExpiresAt = &expiresAt
}

// ClearOTP closes the verification window.
func (u *User) ClearOTP() {
	u.OTPCode = ""
	u.OTPExpiresAt = nil
}

// MarkVerified flags the account as verified and drops any pending code.
func (u *User) MarkVerified() {
	u.IsVerified = true
	u.ClearOTP()
}

// OTPExpired reports whether the pending code can no longer be used at now.
// An account with no open window counts as expired.
func (u *User) OTPExpired(now time.Time) bool {
	if u.OTPCode == "" || u.OTPExpiresAt == nil {
		return true
	}
	return !now.Before(*u.OTPExpiresAt)
}

// Profile returns the public projection of the account.
func (u *User) Profile() *Profile {
	return &Profile{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
	}
}

// Profile is the subset of a User exposed by the protected route.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ExternalProfile is what a federated identity provider tells us about the
// person who just signed in. The provider is trusted to have verified Email.
type ExternalProfile struct {
	Provider    string
	ExternalID  string
	Email       string
	DisplayName string
}

// NormalizeEmail is the single email policy of the service: surrounding
// whitespace is dropped and the address is lower-cased before any lookup or
// insert.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
