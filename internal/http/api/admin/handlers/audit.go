package handlers

import (
	"net/http"
	"strconv"

	"github.com/bizstudio/portal/internal/audit"
	"github.com/bizstudio/portal/internal/http/middleware"
	"github.com/gin-gonic/gin"
)

// AuditHandler lists audit records.
type AuditHandler struct {
	audit *audit.Writer
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(auditWriter *audit.Writer) *AuditHandler {
	return &AuditHandler{audit: auditWriter}
}

// List returns the newest records. ?limit caps the count at audit.DefaultListLimit.
func (h *AuditHandler) List(c *gin.Context) {
	limit := audit.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	records, errList := h.audit.List(c.Request.Context(), limit)
	if errList != nil {
		middleware.Logger(c).WithError(errList).Error("list audit logs failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list audit logs failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": records})
}
