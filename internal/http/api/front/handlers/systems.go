package handlers

import (
	"net/http"

	"github.com/bizstudio/portal/internal/http/middleware"
	"github.com/bizstudio/portal/internal/systems"
	"github.com/gin-gonic/gin"
)

// SystemHandler lists the portal's launchable systems.
type SystemHandler struct {
	systems *systems.Service
}

// NewSystemHandler constructs a SystemHandler.
func NewSystemHandler(systemLinks *systems.Service) *SystemHandler {
	return &SystemHandler{systems: systemLinks}
}

// List returns active system links for the signed-in user.
func (h *SystemHandler) List(c *gin.Context) {
	links, errList := h.systems.ListActive(c.Request.Context(), middleware.CurrentUser(c))
	if errList != nil {
		if writeAuthzError(c, errList) {
			return
		}
		middleware.Logger(c).WithError(errList).Error("list systems failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list systems failed"})
		return
	}

	out := make([]gin.H, 0, len(links))
	for _, link := range links {
		out = append(out, gin.H{
			"id":            link.ID,
			"name":          link.Name,
			"description":   link.Description,
			"url":           link.URL,
			"app_id":        link.AppID,
			"requires_auth": link.RequiresAuth,
			"sort_order":    link.SortOrder,
		})
	}
	c.JSON(http.StatusOK, gin.H{"systems": out})
}
