package models

import "time"

// SystemLink is an entry in the portal's launcher of companion and external systems.
type SystemLink struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	Name         string  `gorm:"type:text;not null"`        // Display name.
	Description  string  `gorm:"type:text"`                 // Optional description.
	URL          string  `gorm:"type:text;not null"`        // Launch URL.
	AppID        *string `gorm:"type:varchar(64);index"`    // Companion application id, when token-enabled.
	RequiresAuth bool    `gorm:"not null;default:false"`    // Whether launching needs an app token.
	Status       string  `gorm:"type:varchar(16);not null"` // active or disabled.
	SortOrder    int     `gorm:"not null;default:0"`        // Display order.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
