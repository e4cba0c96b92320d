package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bizstudio/portal/internal/audit"
	"github.com/bizstudio/portal/internal/authz"
	"github.com/bizstudio/portal/internal/models"
	"github.com/bizstudio/portal/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MaxLength is the longest credential accepted, in characters.
const MaxLength = 200

// maskedLast4 is shown to admins when a stored blob cannot be opened.
const maskedLast4 = "****"

var (
	// ErrValidation indicates an empty or oversized credential.
	ErrValidation = errors.New("credential: validation failed")
	// ErrNotFound indicates the target user does not exist.
	ErrNotFound = errors.New("credential: user not found")
)

// View describes a stored credential. Plaintext is set only when explicitly revealed.
type View struct {
	HasKey        bool
	Plaintext     string
	Last4         string
	SetAt         *time.Time
	DecryptFailed bool
}

// Service stores each user's third-party API credential encrypted at rest.
type Service struct {
	db    *gorm.DB
	audit *audit.Writer
	vault *security.Vault
	nowFn func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB, auditWriter *audit.Writer, vault *security.Vault, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{db: db, audit: auditWriter, vault: vault, nowFn: nowFn}
}

// GetOwn returns the actor's credential. reveal includes the plaintext.
// A blob that fails to decrypt is reported as absent and left in place.
func (s *Service) GetOwn(ctx context.Context, actor *models.User, reveal bool) (View, error) {
	if errAuth := authz.Require(actor, authz.RoleAny); errAuth != nil {
		return View{}, errAuth
	}
	user, errLoad := s.loadUser(ctx, actor.ID)
	if errLoad != nil {
		return View{}, errLoad
	}
	if !user.HasCredential() {
		return View{}, nil
	}
	plaintext, errDecrypt := s.vault.Decrypt(*user.CredentialEncrypted)
	if errDecrypt != nil {
		log.WithField("user_id", user.ID).Warn("credential: stored blob could not be decrypted")
		return View{DecryptFailed: true}, nil
	}
	view := View{HasKey: true, Last4: lastFour(plaintext), SetAt: user.CredentialSetAt}
	if reveal {
		view.Plaintext = plaintext
	}
	return view, nil
}

// GetForUser returns an admin's view of another user's credential. Plaintext is never included.
func (s *Service) GetForUser(ctx context.Context, actor *models.User, targetUserID string) (View, error) {
	if errAuth := authz.Require(actor, authz.RoleAdmin); errAuth != nil {
		return View{}, errAuth
	}
	user, errLoad := s.loadUser(ctx, targetUserID)
	if errLoad != nil {
		return View{}, errLoad
	}
	if !user.HasCredential() {
		return View{}, nil
	}
	view := View{HasKey: true, SetAt: user.CredentialSetAt}
	plaintext, errDecrypt := s.vault.Decrypt(*user.CredentialEncrypted)
	if errDecrypt != nil {
		view.Last4 = maskedLast4
		view.DecryptFailed = true
		return view, nil
	}
	view.Last4 = lastFour(plaintext)
	return view, nil
}

// SetOwn stores plaintext as the actor's credential.
func (s *Service) SetOwn(ctx context.Context, actor *models.User, plaintext string) (View, error) {
	if errAuth := authz.Require(actor, authz.RoleAny); errAuth != nil {
		return View{}, errAuth
	}
	return s.set(ctx, actor, actor.ID, plaintext, audit.ActionSetCredential)
}

// SetForUser stores plaintext as another user's credential on an admin's behalf.
func (s *Service) SetForUser(ctx context.Context, actor *models.User, targetUserID, plaintext string) (View, error) {
	if errAuth := authz.Require(actor, authz.RoleAdmin); errAuth != nil {
		return View{}, errAuth
	}
	return s.set(ctx, actor, targetUserID, plaintext, audit.ActionAdminSetCredential)
}

// DeleteOwn clears the actor's credential.
func (s *Service) DeleteOwn(ctx context.Context, actor *models.User) error {
	if errAuth := authz.Require(actor, authz.RoleAny); errAuth != nil {
		return errAuth
	}
	return s.clear(ctx, actor, actor.ID, audit.ActionDeleteCredential)
}

// DeleteForUser clears another user's credential on an admin's behalf.
func (s *Service) DeleteForUser(ctx context.Context, actor *models.User, targetUserID string) error {
	if errAuth := authz.Require(actor, authz.RoleAdmin); errAuth != nil {
		return errAuth
	}
	return s.clear(ctx, actor, targetUserID, audit.ActionAdminDeleteCredential)
}

func (s *Service) set(ctx context.Context, actor *models.User, targetUserID, plaintext, action string) (View, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return View{}, fmt.Errorf("%w: credential is required", ErrValidation)
	}
	if utf8.RuneCountInString(plaintext) > MaxLength {
		return View{}, fmt.Errorf("%w: credential must be at most %d characters", ErrValidation, MaxLength)
	}

	blob, errEncrypt := s.vault.Encrypt(plaintext)
	if errEncrypt != nil {
		return View{}, errEncrypt
	}
	now := s.nowFn()

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", targetUserID).Updates(map[string]any{
			"credential_encrypted": blob,
			"credential_set_at":    now,
			"updated_at":           now,
		})
		if res.Error != nil {
			return fmt.Errorf("credential: store: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return s.audit.WriteTx(ctx, tx, audit.Entry{
			ActorUserID: &actor.ID,
			Action:      action,
			TargetType:  audit.TargetUser,
			TargetID:    &targetUserID,
		})
	})
	if errTx != nil {
		return View{}, errTx
	}
	return View{HasKey: true, Last4: lastFour(plaintext), SetAt: &now}, nil
}

func (s *Service) clear(ctx context.Context, actor *models.User, targetUserID, action string) error {
	now := s.nowFn()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", targetUserID).Updates(map[string]any{
			"credential_encrypted": nil,
			"credential_set_at":    nil,
			"updated_at":           now,
		})
		if res.Error != nil {
			return fmt.Errorf("credential: clear: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return s.audit.WriteTx(ctx, tx, audit.Entry{
			ActorUserID: &actor.ID,
			Action:      action,
			TargetType:  audit.TargetUser,
			TargetID:    &targetUserID,
		})
	})
}

func (s *Service) loadUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("credential: find user: %w", errFind)
	}
	return &user, nil
}

func lastFour(plaintext string) string {
	runes := []rune(plaintext)
	if len(runes) <= 4 {
		return string(runes)
	}
	return string(runes[len(runes)-4:])
}
