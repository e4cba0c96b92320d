package apptoken

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bizstudio/portal/internal/audit"
	"github.com/bizstudio/portal/internal/authz"
	"github.com/bizstudio/portal/internal/config"
	"github.com/bizstudio/portal/internal/models"
	"github.com/bizstudio/portal/internal/security"
	"github.com/bizstudio/portal/internal/systems"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// TokenTTL bounds how long an issued app token may wait for redemption.
	TokenTTL = 5 * time.Minute
	// SessionTTL is the absolute lifetime of an app session.
	SessionTTL = 8 * time.Hour
)

// Failure codes recorded in VERIFY_APP_TOKEN metadata and returned to companion apps.
const (
	CodeTokenInvalid = "token_invalid"
	CodeTokenUsed    = "token_used"
	CodeTokenExpired = "token_expired"
	CodeAppMismatch  = "app_mismatch"
	CodeUserInactive = "user_inactive"
)

var (
	ErrUnknownApplication = errors.New("apptoken: unknown application")
	ErrTokenInvalid       = errors.New("apptoken: token invalid")
	ErrTokenUsed          = errors.New("apptoken: token already used")
	ErrTokenExpired       = errors.New("apptoken: token expired")
	ErrAppMismatch        = errors.New("apptoken: application mismatch")
	ErrSessionInvalid     = errors.New("apptoken: session invalid")
	ErrSessionExpired     = errors.New("apptoken: session expired")
)

// errConsumeLost marks a redemption that lost the conditional update to a concurrent caller.
var errConsumeLost = errors.New("apptoken: consume lost")

// Profile is the public part of a user shared with companion applications.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ProfileOf extracts the public profile of user.
func ProfileOf(user *models.User) Profile {
	return Profile{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}
}

// Issued is a freshly minted app token. Token is only available here.
type Issued struct {
	Token     string
	ExpiresAt time.Time
	TargetURL string
}

// Verified is the result of a successful redemption.
type Verified struct {
	User             Profile
	SessionToken     string
	SessionExpiresAt time.Time
}

// Options configures a Service.
type Options struct {
	Registry *Registry
	Now      func() time.Time
}

// Service runs the two-stage exchange from portal session to companion app session.
type Service struct {
	db       *gorm.DB
	audit    *audit.Writer
	systems  *systems.Service
	registry *Registry
	nowFn    func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB, auditWriter *audit.Writer, systemLinks *systems.Service, opts Options) *Service {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry(config.AppURLs{})
	}
	return &Service{db: db, audit: auditWriter, systems: systemLinks, registry: registry, nowFn: nowFn}
}

// Issue mints a single-use app token for actor targeting targetApp.
func (s *Service) Issue(ctx context.Context, actor *models.User, targetApp string) (Issued, error) {
	if errAuth := authz.Require(actor, authz.RoleAny); errAuth != nil {
		return Issued{}, errAuth
	}
	targetApp = strings.TrimSpace(targetApp)
	if !IsTokenEnabled(targetApp) {
		return Issued{}, ErrUnknownApplication
	}
	link, errLink := s.systems.FindActiveByAppID(ctx, targetApp)
	if errLink != nil {
		if errors.Is(errLink, systems.ErrNotFound) {
			return Issued{}, ErrUnknownApplication
		}
		return Issued{}, errLink
	}

	token, errToken := security.GenerateToken(security.PrefixAppToken)
	if errToken != nil {
		return Issued{}, errToken
	}
	now := s.nowFn()
	row := models.AppToken{
		ID:        uuid.NewString(),
		UserID:    actor.ID,
		TokenHash: security.HashLookupToken(token),
		TargetApp: targetApp,
		ExpiresAt: now.Add(TokenTTL),
		CreatedAt: now,
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("apptoken: create token: %w", errCreate)
		}
		return s.audit.WriteTx(ctx, tx, audit.Entry{
			ActorUserID: &actor.ID,
			Action:      audit.ActionIssueAppToken,
			TargetType:  audit.TargetAuth,
			TargetID:    &row.ID,
			Metadata:    map[string]any{"targetApp": targetApp, "expiresAt": row.ExpiresAt},
		})
	})
	if errTx != nil {
		return Issued{}, errTx
	}
	return Issued{Token: token, ExpiresAt: row.ExpiresAt, TargetURL: s.registry.URLFor(targetApp, link.URL)}, nil
}

// Verify redeems token for appID. On success the token is consumed and an app session is created
// in the same transaction. A mismatched appID is rejected without consuming the token.
func (s *Service) Verify(ctx context.Context, token, appID string) (Verified, error) {
	token = strings.TrimSpace(token)
	appID = strings.TrimSpace(appID)
	if token == "" || appID == "" {
		return Verified{}, ErrTokenInvalid
	}

	var row models.AppToken
	errFind := s.db.WithContext(ctx).Where("token_hash = ?", security.HashLookupToken(token)).First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Verified{}, ErrTokenInvalid
		}
		return Verified{}, fmt.Errorf("apptoken: find token: %w", errFind)
	}

	now := s.nowFn()
	switch {
	case row.UsedAt != nil:
		return Verified{}, s.recordFailure(ctx, row, appID, CodeTokenUsed, ErrTokenUsed)
	case !now.Before(row.ExpiresAt):
		return Verified{}, s.recordFailure(ctx, row, appID, CodeTokenExpired, ErrTokenExpired)
	case row.TargetApp != appID:
		return Verified{}, s.recordFailure(ctx, row, appID, CodeAppMismatch, ErrAppMismatch)
	}

	var owner models.User
	if errOwner := s.db.WithContext(ctx).Where("id = ?", row.UserID).First(&owner).Error; errOwner != nil {
		if !errors.Is(errOwner, gorm.ErrRecordNotFound) {
			return Verified{}, fmt.Errorf("apptoken: find owner: %w", errOwner)
		}
		return Verified{}, s.recordFailure(ctx, row, appID, CodeUserInactive, ErrTokenInvalid)
	}
	if !owner.IsActive() {
		return Verified{}, s.recordFailure(ctx, row, appID, CodeUserInactive, ErrTokenInvalid)
	}

	sessionToken, errToken := security.GenerateToken(security.PrefixAppSession)
	if errToken != nil {
		return Verified{}, errToken
	}
	session := models.AppSession{
		ID:               uuid.NewString(),
		UserID:           owner.ID,
		SessionTokenHash: security.HashLookupToken(sessionToken),
		AppID:            appID,
		ExpiresAt:        now.Add(SessionTTL),
		CreatedAt:        now,
	}

	consumeAt := s.nowFn()
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AppToken{}).
			Where("id = ? AND used_at IS NULL AND expires_at > ?", row.ID, consumeAt).
			Update("used_at", consumeAt)
		if res.Error != nil {
			return fmt.Errorf("apptoken: consume token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errConsumeLost
		}
		if errCreate := tx.Create(&session).Error; errCreate != nil {
			return fmt.Errorf("apptoken: create session: %w", errCreate)
		}
		return s.audit.WriteTx(ctx, tx, audit.Entry{
			ActorUserID: &owner.ID,
			Action:      audit.ActionVerifyAppToken,
			TargetType:  audit.TargetAuth,
			TargetID:    &row.ID,
			Metadata:    map[string]any{"appId": appID, "success": true},
		})
	})
	if errTx != nil {
		if errors.Is(errTx, errConsumeLost) {
			if !consumeAt.Before(row.ExpiresAt) {
				return Verified{}, s.recordFailure(ctx, row, appID, CodeTokenExpired, ErrTokenExpired)
			}
			return Verified{}, s.recordFailure(ctx, row, appID, CodeTokenUsed, ErrTokenUsed)
		}
		return Verified{}, errTx
	}

	return Verified{User: ProfileOf(&owner), SessionToken: sessionToken, SessionExpiresAt: session.ExpiresAt}, nil
}

func (s *Service) recordFailure(ctx context.Context, row models.AppToken, appID, code string, cause error) error {
	errAudit := s.audit.Write(ctx, audit.Entry{
		ActorUserID: &row.UserID,
		Action:      audit.ActionVerifyAppToken,
		TargetType:  audit.TargetAuth,
		TargetID:    &row.ID,
		Metadata:    map[string]any{"appId": appID, "success": false, "error": code},
	})
	if errAudit != nil {
		log.WithError(errAudit).WithField("code", code).Error("apptoken: audit verify failure")
		return errAudit
	}
	return cause
}

// AuthenticateSession resolves an app session bearer to its still-active user.
func (s *Service) AuthenticateSession(ctx context.Context, sessionToken string) (*models.User, error) {
	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" {
		return nil, ErrSessionInvalid
	}
	var session models.AppSession
	errFind := s.db.WithContext(ctx).Where("session_token_hash = ?", security.HashLookupToken(sessionToken)).First(&session).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("apptoken: find session: %w", errFind)
	}
	if !s.nowFn().Before(session.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	var user models.User
	errUser := s.db.WithContext(ctx).Where("id = ?", session.UserID).First(&user).Error
	if errUser != nil {
		if errors.Is(errUser, gorm.ErrRecordNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("apptoken: find session user: %w", errUser)
	}
	if !user.IsActive() {
		return nil, ErrSessionInvalid
	}
	return &user, nil
}

// CodeFor maps a verification error to the code returned to companion applications.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrTokenUsed):
		return CodeTokenUsed
	case errors.Is(err, ErrTokenExpired):
		return CodeTokenExpired
	case errors.Is(err, ErrAppMismatch):
		return CodeAppMismatch
	case errors.Is(err, ErrTokenInvalid):
		return CodeTokenInvalid
	default:
		return ""
	}
}
