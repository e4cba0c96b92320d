package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bizstudio/portal/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// Allower is satisfied by *ratelimit.Manager.
type Allower interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Result, error)
}

// Throttle limits attempts of kind per client IP to limit per window.
// A limiter error lets the request through.
func Throttle(limiter Allower, kind string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}
		key := ratelimit.KeyForAttempt(kind, c.ClientIP())
		if key == "" {
			c.Next()
			return
		}
		result, errAllow := limiter.Allow(c.Request.Context(), key, limit, window)
		if errAllow != nil {
			Logger(c).WithError(errAllow).WithField("kind", kind).Warn("rate limit check failed")
			c.Next()
			return
		}
		if !result.Allowed {
			retryAfter := int(time.Until(result.Reset).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
			return
		}
		c.Next()
	}
}
