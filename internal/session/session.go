package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bizstudio/portal/internal/audit"
	dbutil "github.com/bizstudio/portal/internal/db"
	"github.com/bizstudio/portal/internal/models"
	"github.com/bizstudio/portal/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Cookie attributes for the first-party session.
const (
	CookieName   = "bs_session"
	CookieMaxAge = 7 * 24 * time.Hour
)

var (
	// ErrAuthenticationFailed covers unknown email, wrong password and disabled accounts alike.
	ErrAuthenticationFailed = errors.New("session: authentication failed")
	// ErrInvalidInput indicates a missing email or password.
	ErrInvalidInput = errors.New("session: email and password are required")
)

// Options configures a Service.
type Options struct {
	Secret string
	Secure bool
	Now    func() time.Time
}

// Service authenticates portal users and manages the session cookie.
type Service struct {
	db     *gorm.DB
	audit  *audit.Writer
	secret string
	secure bool
	nowFn  func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB, auditWriter *audit.Writer, opts Options) *Service {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:     db,
		audit:  auditWriter,
		secret: opts.Secret,
		secure: opts.Secure,
		nowFn:  nowFn,
	}
}

// Login verifies credentials and records the outcome. Every failure returns ErrAuthenticationFailed.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	var user models.User
	errFind := s.db.WithContext(ctx).Where(dbutil.CaseInsensitiveEqualExpr("email"), email).First(&user).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session: find user: %w", errFind)
		}
		security.BurnPasswordCheck(password)
		return nil, s.recordFailure(ctx, email, "", "unknown_email")
	}

	if !security.CheckPassword(user.PasswordHash, password) {
		return nil, s.recordFailure(ctx, email, user.ID, "bad_password")
	}
	if !user.IsActive() {
		return nil, s.recordFailure(ctx, email, user.ID, "disabled")
	}

	if errAudit := s.audit.Write(ctx, audit.Entry{
		ActorUserID: &user.ID,
		Action:      audit.ActionLoginSuccess,
		TargetType:  audit.TargetAuth,
		TargetID:    &user.ID,
	}); errAudit != nil {
		return nil, errAudit
	}
	return &user, nil
}

func (s *Service) recordFailure(ctx context.Context, email, userID, reason string) error {
	errAudit := s.audit.Write(ctx, audit.Entry{
		Action:     audit.ActionLoginFailed,
		TargetType: audit.TargetAuth,
		TargetID:   audit.StringPtr(userID),
		Metadata:   map[string]any{"email": email, "reason": reason},
	})
	if errAudit != nil {
		return errAudit
	}
	return ErrAuthenticationFailed
}

// IssueCookie sets the signed session cookie for user.
func (s *Service) IssueCookie(w http.ResponseWriter, user *models.User) error {
	if user == nil {
		return errors.New("session: nil user")
	}
	value, errSign := security.IssueSessionToken(s.secret, user.ID, s.nowFn(), CookieMaxAge)
	if errSign != nil {
		return errSign
	}
	http.SetCookie(w, s.cookie(value, int(CookieMaxAge/time.Second)))
	return nil
}

// ClearCookie expires the session cookie.
func (s *Service) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie("", -1))
}

func (s *Service) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ResolveSession returns the active user named by the request's session cookie.
// A missing, forged or expired cookie, or a disabled or deleted user, yields (nil, nil).
func (s *Service) ResolveSession(ctx context.Context, r *http.Request) (*models.User, error) {
	if r == nil {
		return nil, nil
	}
	cookie, errCookie := r.Cookie(CookieName)
	if errCookie != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, nil
	}
	userID, errParse := security.ParseSessionToken(s.secret, cookie.Value, s.nowFn())
	if errParse != nil {
		log.WithError(errParse).Debug("session: rejected cookie")
		return nil, nil
	}

	var user models.User
	errFind := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: find user: %w", errFind)
	}
	if !user.IsActive() {
		return nil, nil
	}
	return &user, nil
}

// Logout clears the cookie and records the logout for the resolved user, if any.
func (s *Service) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	user, errResolve := s.ResolveSession(ctx, r)
	s.ClearCookie(w)
	if errResolve != nil {
		return errResolve
	}
	if user == nil {
		return nil
	}
	return s.audit.Write(ctx, audit.Entry{
		ActorUserID: &user.ID,
		Action:      audit.ActionLogout,
		TargetType:  audit.TargetAuth,
		TargetID:    &user.ID,
	})
}
