package handlers

import (
	"errors"
	"net/http"

	"github.com/bizstudio/portal/internal/http/middleware"
	"github.com/bizstudio/portal/internal/invite"
	"github.com/gin-gonic/gin"
)

// InviteHandler lets admins invite new members.
type InviteHandler struct {
	invites *invite.Service
}

// NewInviteHandler constructs an InviteHandler.
func NewInviteHandler(invites *invite.Service) *InviteHandler {
	return &InviteHandler{invites: invites}
}

type createInviteRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Create issues an invite and returns its registration URL. The URL is shown once.
func (h *InviteHandler) Create(c *gin.Context) {
	var body createInviteRequest
	if errBind := c.ShouldBindWith(&body, middleware.StrictJSON); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	issued, errIssue := h.invites.Issue(c.Request.Context(), middleware.CurrentUser(c), body.Email, body.Name)
	if errIssue != nil {
		if writeAuthzError(c, errIssue) {
			return
		}
		switch {
		case errors.Is(errIssue, invite.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": detailOf(errIssue, invite.ErrValidation, "invalid input")})
		case errors.Is(errIssue, invite.ErrAlreadyExists):
			c.JSON(http.StatusConflict, gin.H{"error": "an account with this email already exists"})
		default:
			middleware.Logger(c).WithError(errIssue).Error("create invite failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create invite failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         issued.Invite.ID,
		"email":      issued.Invite.Email,
		"name":       issued.Invite.Name,
		"url":        issued.URL,
		"expires_at": issued.Invite.ExpiresAt,
	})
}
