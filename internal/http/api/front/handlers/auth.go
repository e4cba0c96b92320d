package handlers

import (
	"errors"
	"net/http"

	"github.com/bizstudio/portal/internal/http/middleware"
	"github.com/bizstudio/portal/internal/invite"
	"github.com/bizstudio/portal/internal/session"
	"github.com/gin-gonic/gin"
)

// LoginPath is where logout sends the browser.
const LoginPath = "/login"

// AuthHandler serves first-party login, logout and invite redemption.
type AuthHandler struct {
	sessions *session.Service
	invites  *invite.Service
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(sessions *session.Service, invites *invite.Service) *AuthHandler {
	return &AuthHandler{sessions: sessions, invites: invites}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindWith(&body, middleware.StrictJSON); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	user, errLogin := h.sessions.Login(c.Request.Context(), body.Email, body.Password)
	if errLogin != nil {
		switch {
		case errors.Is(errLogin, session.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		case errors.Is(errLogin, session.ErrAuthenticationFailed):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		default:
			middleware.Logger(c).WithError(errLogin).Error("login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}

	if errCookie := h.sessions.IssueCookie(c.Writer, user); errCookie != nil {
		middleware.Logger(c).WithError(errCookie).Error("issue session cookie failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Logout clears the session cookie and redirects to the login page.
func (h *AuthHandler) Logout(c *gin.Context) {
	if errLogout := h.sessions.Logout(c.Request.Context(), c.Writer, c.Request); errLogout != nil {
		middleware.Logger(c).WithError(errLogout).Warn("record logout failed")
	}
	c.Redirect(http.StatusFound, LoginPath)
}

type consumeInviteRequest struct {
	Token    string `json:"token"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// ConsumeInvite registers a member from a pending invite.
func (h *AuthHandler) ConsumeInvite(c *gin.Context) {
	var body consumeInviteRequest
	if errBind := c.ShouldBindWith(&body, middleware.StrictJSON); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	_, errRedeem := h.invites.Redeem(c.Request.Context(), invite.RedeemInput{
		Token:    body.Token,
		Email:    body.Email,
		Name:     body.Name,
		Password: body.Password,
	})
	if errRedeem != nil {
		switch {
		case errors.Is(errRedeem, invite.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": detailOf(errRedeem, invite.ErrValidation, "invalid input")})
		case errors.Is(errRedeem, invite.ErrInvalidOrExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invite is invalid or expired"})
		case errors.Is(errRedeem, invite.ErrAlreadyExists):
			c.JSON(http.StatusBadRequest, gin.H{"error": "an account with this email already exists"})
		default:
			middleware.Logger(c).WithError(errRedeem).Error("consume invite failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "consume invite failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
