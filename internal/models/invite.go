package models

import "time"

// Invite is a single-use, email-bound registration grant.
type Invite struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	Email     string `gorm:"type:text;not null;index"`       // Invitee email.
	Name      string `gorm:"type:text"`                      // Suggested display name.
	TokenHash string `gorm:"type:text;not null;uniqueIndex"` // SHA-256 of the invite token.

	ExpiresAt  time.Time  `gorm:"not null"` // Redemption deadline.
	ConsumedAt *time.Time `gorm:"index"`    // Set once on redemption.

	CreatedByUserID string `gorm:"type:varchar(36);not null;index"` // Issuing admin.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
