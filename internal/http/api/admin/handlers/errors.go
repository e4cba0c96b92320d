package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bizstudio/portal/internal/authz"
	"github.com/gin-gonic/gin"
)

// writeAuthzError answers authorization failures and reports whether err was one.
func writeAuthzError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, authz.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		return false
	}
	return true
}

// detailOf returns the message a service wrapped around sentinel, or fallback.
func detailOf(err, sentinel error, fallback string) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error())
	msg = strings.TrimSpace(strings.TrimPrefix(msg, ":"))
	if msg == "" {
		return fallback
	}
	return msg
}
