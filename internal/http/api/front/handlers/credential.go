package handlers

import (
	"errors"
	"net/http"

	"github.com/bizstudio/portal/internal/credential"
	"github.com/bizstudio/portal/internal/http/middleware"
	"github.com/gin-gonic/gin"
)

// CredentialHandler manages the caller's own stored API credential.
type CredentialHandler struct {
	credentials *credential.Service
}

// NewCredentialHandler constructs a CredentialHandler.
func NewCredentialHandler(credentials *credential.Service) *CredentialHandler {
	return &CredentialHandler{credentials: credentials}
}

// Get returns the caller's credential. Plaintext is only revealed to companion applications.
func (h *CredentialHandler) Get(c *gin.Context) {
	reveal := middleware.AuthVia(c) == middleware.AuthViaBearer
	view, errGet := h.credentials.GetOwn(c.Request.Context(), middleware.CurrentUser(c), reveal)
	if errGet != nil {
		h.writeError(c, errGet, "get credential failed")
		return
	}
	c.JSON(http.StatusOK, credentialBody(view, reveal))
}

type updateCredentialRequest struct {
	Credential string `json:"credential"`
}

// Update stores a new credential for the caller.
func (h *CredentialHandler) Update(c *gin.Context) {
	var body updateCredentialRequest
	if errBind := c.ShouldBindWith(&body, middleware.StrictJSON); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	view, errSet := h.credentials.SetOwn(c.Request.Context(), middleware.CurrentUser(c), body.Credential)
	if errSet != nil {
		h.writeError(c, errSet, "update credential failed")
		return
	}
	c.JSON(http.StatusOK, credentialBody(view, false))
}

// Delete clears the caller's credential.
func (h *CredentialHandler) Delete(c *gin.Context) {
	if errDelete := h.credentials.DeleteOwn(c.Request.Context(), middleware.CurrentUser(c)); errDelete != nil {
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
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		middleware.Logger(c).WithError(err).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func credentialBody(view credential.View, reveal bool) gin.H {
	out := gin.H{
		"has_key": view.HasKey,
		"last4":   view.Last4,
		"set_at":  view.SetAt,
	}
	if reveal && view.HasKey {
		out["credential"] = view.Plaintext
	}
	return out
}
