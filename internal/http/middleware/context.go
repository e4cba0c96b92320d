package middleware

import (
	"github.com/bizstudio/portal/internal/models"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	contextUserKey      = "portalUser"
	contextAuthVia      = "portalAuthVia"
	contextRequestIDKey = "requestID"
)

// Authentication paths recorded by the auth middleware.
const (
	AuthViaCookie = "cookie"
	AuthViaBearer = "bearer"
)

// CurrentUser returns the user attached by the auth middleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

// AuthVia reports how the current user authenticated.
func AuthVia(c *gin.Context) string {
	return c.GetString(contextAuthVia)
}

// RequestID returns the id assigned to the current request.
func RequestID(c *gin.Context) string {
	return c.GetString(contextRequestIDKey)
}

// Logger returns a log entry tagged with the current request id.
func Logger(c *gin.Context) *log.Entry {
	entry := log.NewEntry(log.StandardLogger())
	if requestID := RequestID(c); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	return entry
}

func setUser(c *gin.Context, user *models.User, via string) {
	c.Set(contextUserKey, user)
	c.Set(contextAuthVia, via)
}
