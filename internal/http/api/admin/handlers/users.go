package handlers

import (
	"errors"
	"net/http"

	"github.com/bizstudio/portal/internal/http/middleware"
	"github.com/bizstudio/portal/internal/users"
	"github.com/gin-gonic/gin"
)

// UserHandler manages member accounts.
type UserHandler struct {
	users *users.Service
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(userService *users.Service) *UserHandler {
	return &UserHandler{users: userService}
}

// List returns every portal user.
func (h *UserHandler) List(c *gin.Context) {
	list, errList := h.users.List(c.Request.Context(), middleware.CurrentUser(c))
	if errList != nil {
		if writeAuthzError(c, errList) {
			return
		}
		middleware.Logger(c).WithError(errList).Error("list users failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": list})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus activates or disables a user.
func (h *UserHandler) SetStatus(c *gin.Context) {
	var body setStatusRequest
	if errBind := c.ShouldBindWith(&body, middleware.StrictJSON); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	errSet := h.users.SetStatus(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), body.Status)
	if errSet != nil {
		if writeAuthzError(c, errSet) {
			return
		}
		switch {
		case errors.Is(errSet, users.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": detailOf(errSet, users.ErrValidation, "invalid status")})
		case errors.Is(errSet, users.ErrSelfStatusChange):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot change your own status"})
		case errors.Is(errSet, users.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			middleware.Logger(c).WithError(errSet).Error("set user status failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "set user status failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
