package models

import "time"

// AppToken is a short-lived, single-use bearer grant for one companion application.
type AppToken struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	UserID    string `gorm:"type:varchar(36);not null;index"` // Owning user.
	TokenHash string `gorm:"type:text;not null;uniqueIndex"`  // SHA-256 of the token.
	TargetApp string `gorm:"type:varchar(64);not null"`       // Companion application id.

	ExpiresAt time.Time  `gorm:"not null"` // Absolute expiry.
	UsedAt    *time.Time `gorm:"index"`    // Set once when redeemed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// AppSession is the longer-lived bearer a companion application holds after redemption.
type AppSession struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	UserID           string `gorm:"type:varchar(36);not null;index"` // Owning user.
	SessionTokenHash string `gorm:"type:text;not null;uniqueIndex"`  // SHA-256 of the session token.
	AppID            string `gorm:"type:varchar(64);not null"`       // Companion application id.

	ExpiresAt time.Time `gorm:"not null"` // Absolute expiry.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
