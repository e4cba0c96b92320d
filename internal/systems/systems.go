package systems

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bizstudio/portal/internal/audit"
	"github.com/bizstudio/portal/internal/authz"
	"github.com/bizstudio/portal/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrValidation wraps invalid system link input.
	ErrValidation = errors.New("systems: validation failed")
	// ErrNotFound indicates no system link with the given id.
	ErrNotFound = errors.New("systems: not found")
)

// Input is the editable shape of a system link. Nil fields are left unchanged on update.
type Input struct {
	Name         *string
	Description  *string
	URL          *string
	AppID        *string
	RequiresAuth *bool
	Status       *string
	SortOrder    *int
}

// Service manages the portal's system links.
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

// ListActive returns active links in display order for any signed-in user.
func (s *Service) ListActive(ctx context.Context, actor *models.User) ([]models.SystemLink, error) {
	if errAuth := authz.Require(actor, authz.RoleAny); errAuth != nil {
		return nil, errAuth
	}
	var links []models.SystemLink
	if errFind := s.db.WithContext(ctx).
		Where("status = ?", models.StatusActive).
		Order("sort_order ASC, name ASC").
		Find(&links).Error; errFind != nil {
		return nil, fmt.Errorf("systems: list active: %w", errFind)
	}
	return links, nil
}

// ListAll returns every link for administration.
func (s *Service) ListAll(ctx context.Context, actor *models.User) ([]models.SystemLink, error) {
	if errAuth := authz.Require(actor, authz.RoleAdmin); errAuth != nil {
		return nil, errAuth
	}
	var links []models.SystemLink
	if errFind := s.db.WithContext(ctx).Order("sort_order ASC, name ASC").Find(&links).Error; errFind != nil {
		return nil, fmt.Errorf("systems: list: %w", errFind)
	}
	return links, nil
}

// FindActiveByAppID returns the active link bound to a companion application id.
func (s *Service) FindActiveByAppID(ctx context.Context, appID string) (*models.SystemLink, error) {
	var link models.SystemLink
	errFind := s.db.WithContext(ctx).
		Where("app_id = ? AND status = ?", appID, models.StatusActive).
		Order("sort_order ASC").
		First(&link).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("systems: find by app id: %w", errFind)
	}
	return &link, nil
}

// Create adds a link. Name and URL are required.
func (s *Service) Create(ctx context.Context, actor *models.User, in Input) (*models.SystemLink, error) {
	if errAuth := authz.Require(actor, authz.RoleAdmin); errAuth != nil {
		return nil, errAuth
	}
	if in.Name == nil || in.URL == nil {
		return nil, fmt.Errorf("%w: name and url are required", ErrValidation)
	}
	now := s.nowFn()
	link := models.SystemLink{
		ID:        uuid.NewString(),
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errApply := apply(&link, in); errApply != nil {
		return nil, errApply
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&link).Error; errCreate != nil {
			return fmt.Errorf("systems: create: %w", errCreate)
		}
		return s.audit.WriteTx(ctx, tx, audit.Entry{
			ActorUserID: &actor.ID,
			Action:      audit.ActionSystemCreated,
			TargetType:  audit.TargetSystem,
			TargetID:    &link.ID,
			Metadata:    map[string]any{"name": link.Name, "url": link.URL, "status": link.Status},
		})
	})
	if errTx != nil {
		return nil, errTx
	}
	return &link, nil
}

// Update applies the non-nil fields of in to the link with id.
func (s *Service) Update(ctx context.Context, actor *models.User, id string, in Input) (*models.SystemLink, error) {
	if errAuth := authz.Require(actor, authz.RoleAdmin); errAuth != nil {
		return nil, errAuth
	}
	var link models.SystemLink
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("id = ?", id).First(&link).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("systems: find: %w", errFind)
		}
		if errApply := apply(&link, in); errApply != nil {
			return errApply
		}
		link.UpdatedAt = s.nowFn()
		if errSave := tx.Save(&link).Error; errSave != nil {
			return fmt.Errorf("systems: update: %w", errSave)
		}
		return s.audit.WriteTx(ctx, tx, audit.Entry{
			ActorUserID: &actor.ID,
			Action:      audit.ActionSystemUpdated,
			TargetType:  audit.TargetSystem,
			TargetID:    &link.ID,
			Metadata:    map[string]any{"name": link.Name, "url": link.URL, "status": link.Status},
		})
	})
	if errTx != nil {
		return nil, errTx
	}
	return &link, nil
}

func apply(link *models.SystemLink, in Input) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return fmt.Errorf("%w: name is required", ErrValidation)
		}
		link.Name = name
	}
	if in.Description != nil {
		link.Description = strings.TrimSpace(*in.Description)
	}
	if in.URL != nil {
		raw := strings.TrimSpace(*in.URL)
		if !IsHTTPURL(raw) {
			return fmt.Errorf("%w: url must be http or https", ErrValidation)
		}
		link.URL = raw
	}
	if in.AppID != nil {
		appID := strings.TrimSpace(*in.AppID)
		if appID == "" {
			link.AppID = nil
		} else {
			link.AppID = &appID
		}
	}
	if in.RequiresAuth != nil {
		link.RequiresAuth = *in.RequiresAuth
	}
	if in.Status != nil {
		status := strings.TrimSpace(*in.Status)
		if status != models.StatusActive && status != models.StatusDisabled {
			return fmt.Errorf("%w: status must be active or disabled", ErrValidation)
		}
		link.Status = status
	}
	if in.SortOrder != nil {
		link.SortOrder = *in.SortOrder
	}
	return nil
}

// IsHTTPURL reports whether raw is an absolute http or https URL with a host.
func IsHTTPURL(raw string) bool {
	u, errParse := url.Parse(raw)
	if errParse != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
