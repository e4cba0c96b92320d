package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog is an append-only record of a security-relevant action.
type AuditLog struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	ActorUserID string  `gorm:"type:varchar(36);not null;index"` // Acting user or the anonymous sentinel.
	Action      string  `gorm:"type:varchar(64);not null;index"` // Action name.
	TargetType  string  `gorm:"type:varchar(16);not null"`       // AUTH, USER or SYSTEM.
	TargetID    *string `gorm:"type:varchar(64)"`                // Affected entity id.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Structured context, never secrets.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
