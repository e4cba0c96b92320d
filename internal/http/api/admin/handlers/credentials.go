package handlers

import (
	"errors"
	"net/http"

	"github.com/bizstudio/portal/internal/credential"
	"github.com/bizstudio/portal/internal/http/middleware"
	"github.com/gin-gonic/gin"
)

// CredentialHandler lets admins inspect and manage a member's stored credential.
// Plaintext is never returned.
type CredentialHandler struct {
	credentials *credential.Service
}

// NewCredentialHandler constructs a CredentialHandler.
func NewCredentialHandler(credentials *credential.Service) *CredentialHandler {
	return &CredentialHandler{credentials: credentials}
}

// Get returns whether the user has a credential and its last four characters.
func (h *CredentialHandler) Get(c *gin.Context) {
	view, errGet := h.credentials.GetForUser(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if errGet != nil {
		h.writeError(c, errGet, "get credential failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"has_key":        view.HasKey,
		"last4":          view.Last4,
		"set_at":         view.SetAt,
		"decrypt_failed": view.DecryptFailed,
	})
}

type setCredentialRequest struct {
	Credential string `json:"credential"`
}

// Update replaces the user's credential.
func (h *CredentialHandler) Update(c *gin.Context) {
	var body setCredentialRequest
	if errBind := c.ShouldBindWith(&body, middleware.StrictJSON); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	view, errSet := h.credentials.SetForUser(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), body.Credential)
	if errSet != nil {
		h.writeError(c, errSet, "update credential failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"has_key": view.HasKey, "last4": view.Last4, "set_at": view.SetAt})
}

// Delete clears the user's credential.
func (h *CredentialHandler) Delete(c *gin.Context) {
	if errDelete := h.credentials.DeleteForUser(c.Request.Context(), middleware.CurrentUser(c), c.Param("id")); errDelete != nil {
		h.writeError(c, errDelete, "delete credential failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *CredentialHandler) writeError(c *gin.Context, err error, fallback string) {
	if writeAuthzError(c, err) {
		return
	}
	switch {
	case errors.Is(err, credential.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": detailOf(err, credential.ErrValidation, "invalid credential")})
	case errors.Is(err, credential.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		middleware.Logger(c).WithError(err).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
