package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bizstudio/portal/internal/apptoken"
	"github.com/bizstudio/portal/internal/authz"
	"github.com/bizstudio/portal/internal/models"
	"github.com/gin-gonic/gin"
)

// SessionResolver resolves the first-party session cookie.
type SessionResolver interface {
	ResolveSession(ctx context.Context, r *http.Request) (*models.User, error)
}

// AppSessionAuthenticator resolves a companion application's bearer session.
type AppSessionAuthenticator interface {
	AuthenticateSession(ctx context.Context, sessionToken string) (*models.User, error)
}

// LoadSessionUser attaches the cookie user, when there is one, without rejecting anonymous requests.
func LoadSessionUser(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, errResolve := sessions.ResolveSession(c.Request.Context(), c.Request)
		if errResolve != nil {
			Logger(c).WithError(errResolve).Error("resolve session failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "resolve session failed"})
			return
		}
		if user != nil {
			setUser(c, user, AuthViaCookie)
		}
		c.Next()
	}
}

// RequireRole rejects requests whose attached user does not satisfy role.
func RequireRole(role authz.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if errAuth := authz.Require(CurrentUser(c), role); errAuth != nil {
			if errors.Is(errAuth, authz.ErrForbidden) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// RequireAppSession authenticates companion applications by their bearer app session.
func RequireAppSession(sessions AppSessionAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		authenticateBearer(c, sessions, token)
	}
}

// RequireAppSessionOrCookie accepts a bearer app session or, when no Authorization
// header is sent, the first-party session cookie.
func RequireAppSessionOrCookie(appSessions AppSessionAuthenticator, sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			authenticateBearer(c, appSessions, token)
			return
		}
		if strings.TrimSpace(c.GetHeader("Authorization")) != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		user, errResolve := sessions.ResolveSession(c.Request.Context(), c.Request)
		if errResolve != nil {
			Logger(c).WithError(errResolve).Error("resolve session failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "resolve session failed"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		setUser(c, user, AuthViaCookie)
		c.Next()
	}
}

func authenticateBearer(c *gin.Context, sessions AppSessionAuthenticator, token string) {
	user, errAuth := sessions.AuthenticateSession(c.Request.Context(), token)
	switch {
	case errAuth == nil:
		setUser(c, user, AuthViaBearer)
		c.Next()
	case errors.Is(errAuth, apptoken.ErrSessionExpired):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_expired"})
	case errors.Is(errAuth, apptoken.ErrSessionInvalid):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_invalid"})
	default:
		Logger(c).WithError(errAuth).Error("authenticate app session failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authenticate session failed"})
	}
}

// bearerToken extracts a non-empty bearer token from the Authorization header.
func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
