package handlers

import (
	"errors"
	"net/http"

	"github.com/bizstudio/portal/internal/apptoken"
	"github.com/bizstudio/portal/internal/http/middleware"
	"github.com/gin-gonic/gin"
)

// AppTokenHandler runs the portal side of the companion application handoff.
type AppTokenHandler struct {
	tokens *apptoken.Service
}

// NewAppTokenHandler constructs an AppTokenHandler.
func NewAppTokenHandler(tokens *apptoken.Service) *AppTokenHandler {
	return &AppTokenHandler{tokens: tokens}
}

type issueAppTokenRequest struct {
	TargetApp string `json:"target_app"`
}

// Issue mints a single-use token for the signed-in user.
func (h *AppTokenHandler) Issue(c *gin.Context) {
	var body issueAppTokenRequest
	if errBind := c.ShouldBindWith(&body, middleware.StrictJSON); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	issued, errIssue := h.tokens.Issue(c.Request.Context(), middleware.CurrentUser(c), body.TargetApp)
	if errIssue != nil {
		if writeAuthzError(c, errIssue) {
			return
		}
		if errors.Is(errIssue, apptoken.ErrUnknownApplication) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown application"})
			return
		}
		middleware.Logger(c).WithError(errIssue).Error("issue app token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue app token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      issued.Token,
		"expires_at": issued.ExpiresAt,
		"target_url": issued.TargetURL,
	})
}

type verifyAppTokenRequest struct {
	Token string `json:"token"`
	AppID string `json:"app_id"`
}

// Verify redeems a token on behalf of a companion application.
func (h *AppTokenHandler) Verify(c *gin.Context) {
	var body verifyAppTokenRequest
	if errBind := c.ShouldBindWith(&body, middleware.StrictJSON); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "invalid_request"})
		return
	}

	verified, errVerify := h.tokens.Verify(c.Request.Context(), body.Token, body.AppID)
	if errVerify != nil {
		if code := apptoken.CodeFor(errVerify); code != "" {
			c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "error": code})
			return
		}
		middleware.Logger(c).WithError(errVerify).Error("verify app token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"valid": false, "error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":              true,
		"user":               verified.User,
		"session_token":      verified.SessionToken,
		"session_expires_at": verified.SessionExpiresAt,
	})
}

// Me returns the profile behind a bearer app session.
func (h *AppTokenHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, apptoken.ProfileOf(user))
}
