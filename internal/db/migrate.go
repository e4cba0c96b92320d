package db

import (
	"errors"
	"fmt"

	"github.com/bizstudio/portal/internal/models"
	"github.com/bizstudio/portal/internal/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema and seeds required rows.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Invite{},
		&models.AppToken{},
		&models.AppSession{},
		&models.AuditLog{},
		&models.SystemLink{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if _, errSeed := EnsureAnonymousUser(conn); errSeed != nil {
		return errSeed
	}
	return nil
}

// EnsureAnonymousUser returns the sentinel actor id, creating the row when missing.
// The sentinel is disabled and carries an unusable password hash.
func EnsureAnonymousUser(conn *gorm.DB) (string, error) {
	var existing models.User
	errFind := conn.Where("email = ?", models.AnonymousEmail).First(&existing).Error
	if errFind == nil {
		return existing.ID, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("db: find anonymous user: %w", errFind)
	}

	sentinel := models.User{
		ID:           uuid.NewString(),
		Email:        models.AnonymousEmail,
		Name:         "Anonymous",
		Role:         models.RoleMember,
		Status:       models.StatusDisabled,
		PasswordHash: security.UnusablePasswordHash(),
	}
	if errCreate := conn.Create(&sentinel).Error; errCreate != nil {
		if !IsUniqueViolation(errCreate) {
			return "", fmt.Errorf("db: create anonymous user: %w", errCreate)
		}
		// Another process seeded it first.
		if errReload := conn.Where("email = ?", models.AnonymousEmail).First(&existing).Error; errReload != nil {
			return "", fmt.Errorf("db: reload anonymous user: %w", errReload)
		}
		return existing.ID, nil
	}
	return sentinel.ID, nil
}
