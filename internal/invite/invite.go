package invite

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bizstudio/portal/internal/audit"
	"github.com/bizstudio/portal/internal/authz"
	dbutil "github.com/bizstudio/portal/internal/db"
	"github.com/bizstudio/portal/internal/models"
	"github.com/bizstudio/portal/internal/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// DefaultTTL is how long an invite stays redeemable.
	DefaultTTL = 7 * 24 * time.Hour
	// MinPasswordLength is the shortest password accepted at redemption.
	MinPasswordLength = 8
)

var (
	// ErrValidation wraps input problems detected before any lookup.
	ErrValidation = errors.New("invite: validation failed")
	// ErrInvalidOrExpired covers unknown, consumed, expired and email-mismatched invites.
	ErrInvalidOrExpired = errors.New("invite: invalid or expired")
	// ErrAlreadyExists indicates the email already belongs to a user.
	ErrAlreadyExists = errors.New("invite: user already exists")
)

// Issued is a freshly created invite. Token is only available here.
type Issued struct {
	Invite models.Invite
	Token  string
	URL    string
}

// RedeemInput carries the invitee's registration form.
type RedeemInput struct {
	Token    string
	Email    string
	Name     string
	Password string
}

// Service issues and redeems invites.
type Service struct {
	db    *gorm.DB
	audit *audit.Writer
	nowFn func() time.Time
	ttl   time.Duration
}

// NewService constructs a Service. A nil nowFn uses the UTC wall clock.
func NewService(db *gorm.DB, auditWriter *audit.Writer, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{db: db, audit: auditWriter, nowFn: nowFn, ttl: DefaultTTL}
}

// Issue creates an invite for email on behalf of an admin.
func (s *Service) Issue(ctx context.Context, actor *models.User, email, name string) (Issued, error) {
	if errAuth := authz.Require(actor, authz.RoleAdmin); errAuth != nil {
		return Issued{}, errAuth
	}
	email = models.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if !strings.Contains(email, "@") {
		return Issued{}, fmt.Errorf("%w: invalid email", ErrValidation)
	}

	var existing int64
	if errCount := s.db.WithContext(ctx).Model(&models.User{}).
		Where(dbutil.CaseInsensitiveEqualExpr("email"), email).
		Count(&existing).Error; errCount != nil {
		return Issued{}, fmt.Errorf("invite: check existing user: %w", errCount)
	}
	if existing > 0 {
		return Issued{}, ErrAlreadyExists
	}

	token, errToken := security.GenerateToken(security.PrefixInvite)
	if errToken != nil {
		return Issued{}, errToken
	}
	now := s.nowFn()
	inv := models.Invite{
		ID:              uuid.NewString(),
		Email:           email,
		Name:            name,
		TokenHash:       security.HashLookupToken(token),
		ExpiresAt:       now.Add(s.ttl),
		CreatedByUserID: actor.ID,
		CreatedAt:       now,
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&inv).Error; errCreate != nil {
			return fmt.Errorf("invite: create: %w", errCreate)
		}
		return s.audit.WriteTx(ctx, tx, audit.Entry{
			ActorUserID: &actor.ID,
			Action:      audit.ActionInviteCreated,
			TargetType:  audit.TargetUser,
			TargetID:    &inv.ID,
			Metadata:    map[string]any{"email": email, "expiresAt": inv.ExpiresAt},
		})
	})
	if errTx != nil {
		return Issued{}, errTx
	}
	return Issued{Invite: inv, Token: token, URL: BuildURL(token, email, name)}, nil
}

// BuildURL returns the relative registration link carried to the invitee.
func BuildURL(token, email, name string) string {
	query := url.Values{}
	query.Set("email", email)
	if name != "" {
		query.Set("name", name)
	}
	return "/invite/" + url.PathEscape(token) + "?" + query.Encode()
}

// Redeem consumes a valid invite and creates an active member account in one transaction.
func (s *Service) Redeem(ctx context.Context, in RedeemInput) (*models.User, error) {
	in.Token = strings.TrimSpace(in.Token)
	in.Email = models.NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if errValidate := validateRedeem(in); errValidate != nil {
		return nil, errValidate
	}

	now := s.nowFn()
	var inv models.Invite
	errFind := s.db.WithContext(ctx).
		Where("email = ? AND token_hash = ? AND consumed_at IS NULL AND expires_at > ?",
			in.Email, security.HashLookupToken(in.Token), now).
		First(&inv).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("invite: find: %w", errFind)
		}
		return nil, s.recordFailure(ctx, in.Email, "", ErrInvalidOrExpired)
	}

	hash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return nil, errHash
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		Role:         models.RoleMember,
		Status:       models.StatusActive,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Invite{}).
			Where("id = ? AND consumed_at IS NULL AND expires_at > ?", inv.ID, now).
			Update("consumed_at", now)
		if res.Error != nil {
			return fmt.Errorf("invite: consume: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidOrExpired
		}
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			if dbutil.IsUniqueViolation(errCreate) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("invite: create user: %w", errCreate)
		}
		return s.audit.WriteTx(ctx, tx, audit.Entry{
			ActorUserID: &user.ID,
			Action:      audit.ActionInviteConsumedUserCreated,
			TargetType:  audit.TargetUser,
			TargetID:    &user.ID,
			Metadata:    map[string]any{"email": user.Email, "inviteId": inv.ID},
		})
	})
	if errTx != nil {
		if errors.Is(errTx, ErrInvalidOrExpired) {
			return nil, s.recordFailure(ctx, in.Email, "", ErrInvalidOrExpired)
		}
		if errors.Is(errTx, ErrAlreadyExists) {
			return nil, s.recordFailure(ctx, in.Email, "already_exists", ErrAlreadyExists)
		}
		return nil, errTx
	}
	return &user, nil
}

func (s *Service) recordFailure(ctx context.Context, email, reason string, cause error) error {
	metadata := map[string]any{"email": email}
	if reason != "" {
		metadata["reason"] = reason
	}
	if errAudit := s.audit.Write(ctx, audit.Entry{
		Action:     audit.ActionInviteConsumeFailed,
		TargetType: audit.TargetUser,
		Metadata:   metadata,
	}); errAudit != nil {
		return errAudit
	}
	return cause
}

func validateRedeem(in RedeemInput) error {
	switch {
	case in.Token == "":
		return fmt.Errorf("%w: token is required", ErrValidation)
	case !strings.Contains(in.Email, "@"):
		return fmt.Errorf("%w: invalid email", ErrValidation)
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrValidation)
	case len(in.Password) < MinPasswordLength:
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	return nil
}
