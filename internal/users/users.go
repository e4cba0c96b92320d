package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bizstudio/portal/internal/audit"
	"github.com/bizstudio/portal/internal/authz"
	"github.com/bizstudio/portal/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates no user with the given id.
	ErrNotFound = errors.New("users: not found")
	// ErrValidation indicates an unknown status value.
	ErrValidation = errors.New("users: validation failed")
	// ErrSelfStatusChange blocks an admin from disabling their own account.
	ErrSelfStatusChange = errors.New("users: cannot change own status")
)

// Summary is a user row as shown to admins.
type Summary struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	HasCredential bool      `json:"has_credential"`
	CreatedAt     time.Time `json:"created_at"`
}

// Service lists users and changes their status.
type Service struct {
	db    *gorm.DB
	audit *audit.Writer
	nowFn func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB, auditWriter *audit.Writer, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{db: db, audit: auditWriter, nowFn: nowFn}
}

// List returns every real account, newest first, with a credential presence flag.
func (s *Service) List(ctx context.Context, actor *models.User) ([]Summary, error) {
	if errAuth := authz.Require(actor, authz.RoleAdmin); errAuth != nil {
		return nil, errAuth
	}
	var rows []models.User
	if errFind := s.db.WithContext(ctx).
		Where("email <> ?", models.AnonymousEmail).
		Order("created_at DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("users: list: %w", errFind)
	}
	out := make([]Summary, 0, len(rows))
	for i := range rows {
		u := &rows[i]
		out = append(out, Summary{
			ID:            u.ID,
			Email:         u.Email,
			Name:          u.Name,
			Role:          u.Role,
			Status:        u.Status,
			HasCredential: u.HasCredential(),
			CreatedAt:     u.CreatedAt,
		})
	}
	return out, nil
}

// SetStatus activates or disables a user. The change takes effect on the user's next request.
func (s *Service) SetStatus(ctx context.Context, actor *models.User, targetUserID, status string) error {
	if errAuth := authz.Require(actor, authz.RoleAdmin); errAuth != nil {
		return errAuth
	}
	status = strings.TrimSpace(status)
	if status != models.StatusActive && status != models.StatusDisabled {
		return fmt.Errorf("%w: status must be active or disabled", ErrValidation)
	}
	if targetUserID == actor.ID {
		return ErrSelfStatusChange
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target models.User
		if errFind := tx.Where("id = ? AND email <> ?", targetUserID, models.AnonymousEmail).First(&target).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("users: find: %w", errFind)
		}
		previous := target.Status
		if errUpdate := tx.Model(&models.User{}).Where("id = ?", target.ID).Updates(map[string]any{
			"status":     status,
			"updated_at": s.nowFn(),
		}).Error; errUpdate != nil {
			return fmt.Errorf("users: update status: %w", errUpdate)
		}
		return s.audit.WriteTx(ctx, tx, audit.Entry{
			ActorUserID: &actor.ID,
			Action:      audit.ActionUserStatusChanged,
			TargetType:  audit.TargetUser,
			TargetID:    &target.ID,
			Metadata:    map[string]any{"from": previous, "to": status},
		})
	})
}
