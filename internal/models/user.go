package models

import (
	"strings"
	"time"
)

// Role values for portal accounts.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Status values shared by users and system links.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// AnonymousEmail identifies the sentinel actor recorded for unauthenticated audit events.
const AnonymousEmail = "anonymous@local"

// User represents a portal account stored in the database.
type User struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	Email        string `gorm:"type:text;not null;uniqueIndex"` // Login email, unique.
	Name         string `gorm:"type:text;not null"`             // Display name.
	Role         string `gorm:"type:varchar(16);not null"`      // admin or member.
	Status       string `gorm:"type:varchar(16);not null"`      // active or disabled.
	PasswordHash string `gorm:"type:text;not null"`             // bcrypt hash.

	CredentialEncrypted *string    `gorm:"type:text"`    // base64(nonce || ciphertext || tag) of the third-party API key.
	CredentialSetAt     *time.Time `gorm:"default:null"` // When the credential was last stored.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u != nil && u.Status == StatusActive
}

// HasCredential reports whether an encrypted credential blob is stored.
func (u *User) HasCredential() bool {
	return u != nil && u.CredentialEncrypted != nil && *u.CredentialEncrypted != ""
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
