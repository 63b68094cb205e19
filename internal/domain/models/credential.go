// internal/domain/models/credential.go
package models

import (
	"time"
)

// CollCredenciales holds identity-service accounts.
const CollCredenciales = "credenciales"

// Credential is the identity service's account record. It never leaves the
// identity package except through identity.User.
type Credential struct {
	UID           string `bson:"_id" json:"uid"`
	Email         string `bson:"email" json:"email"` // lowercase
	PasswordHash  string `bson:"password_hash" json:"-"`
	DisplayName   string `bson:"display_name" json:"display_name"`
	Disabled      bool   `bson:"disabled" json:"disabled"`
	EmailVerified bool   `bson:"email_verified" json:"email_verified"`

	FailedAttempts int        `bson:"failed_attempts" json:"-"`
	LockedUntil    *time.Time `bson:"locked_until,omitempty" json:"-"`
	LastSignInAt   *time.Time `bson:"last_sign_in_at,omitempty" json:"last_sign_in_at,omitempty"`

	// SessionVersion is stamped into every ID token; signing out bumps it,
	// which revokes the tokens issued before.
	SessionVersion int `bson:"session_version" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
