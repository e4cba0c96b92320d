package handlers

import (
	"errors"
	"net/http"

	"github.com/bizstudio/portal/internal/http/middleware"
	"github.com/bizstudio/portal/internal/models"
	"github.com/bizstudio/portal/internal/systems"
	"github.com/gin-gonic/gin"
)

// SystemHandler manages the portal's system links.
type SystemHandler struct {
	systems *systems.Service
}

// NewSystemHandler constructs a SystemHandler.
func NewSystemHandler(systemLinks *systems.Service) *SystemHandler {
	return &SystemHandler{systems: systemLinks}
}

// systemRequest is shared by create and update; omitted fields are left unchanged on update.
type systemRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	URL          *string `json:"url"`
	AppID        *string `json:"app_id"`
	RequiresAuth *bool   `json:"requires_auth"`
	Status       *string `json:"status"`
	SortOrder    *int    `json:"sort_order"`
}

func (r systemRequest) input() systems.Input {
	return systems.Input{
		Name:         r.Name,
		Description:  r.Description,
		URL:          r.URL,
		AppID:        r.AppID,
		RequiresAuth: r.RequiresAuth,
		Status:       r.Status,
		SortOrder:    r.SortOrder,
	}
}

// List returns every link, including disabled ones.
func (h *SystemHandler) List(c *gin.Context) {
	links, errList := h.systems.ListAll(c.Request.Context(), middleware.CurrentUser(c))
	if errList != nil {
		h.writeError(c, errList, "list systems failed")
		return
	}
	out := make([]gin.H, 0, len(links))
	for i := range links {
		out = append(out, systemBody(&links[i]))
	}
	c.JSON(http.StatusOK, gin.H{"systems": out})
}

// Create adds a link.
func (h *SystemHandler) Create(c *gin.Context) {
	var body systemRequest
	if errBind := c.ShouldBindWith(&body, middleware.StrictJSON); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	link, errCreate := h.systems.Create(c.Request.Context(), middleware.CurrentUser(c), body.input())
	if errCreate != nil {
		h.writeError(c, errCreate, "create system failed")
		return
	}
	c.JSON(http.StatusCreated, systemBody(link))
}

// Update edits a link.
func (h *SystemHandler) Update(c *gin.Context) {
	var body systemRequest
	if errBind := c.ShouldBindWith(&body, middleware.StrictJSON); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	link, errUpdate := h.systems.Update(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), body.input())
	if errUpdate != nil {
		h.writeError(c, errUpdate, "update system failed")
		return
	}
	c.JSON(http.StatusOK, systemBody(link))
}

func (h *SystemHandler) writeError(c *gin.Context, err error, fallback string) {
	if writeAuthzError(c, err) {
		return
	}
	switch {
	case errors.Is(err, systems.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": detailOf(err, systems.ErrValidation, "invalid input")})
	case errors.Is(err, systems.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "system not found"})
	default:
		middleware.Logger(c).WithError(err).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func systemBody(link *models.SystemLink) gin.H {
	return gin.H{
		"id":            link.ID,
		"name":          link.Name,
		"description":   link.Description,
		"url":           link.URL,
		"app_id":        link.AppID,
		"requires_auth": link.RequiresAuth,
		"status":        link.Status,
		"sort_order":    link.SortOrder,
		"created_at":    link.CreatedAt,
		"updated_at":    link.UpdatedAt,
	}
}
