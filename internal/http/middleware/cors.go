package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CompanionOrigins are the deployed companion applications allowed to call the portal cross-origin.
var CompanionOrigins = []string{
	"https://tender-reverence-production.up.railway.app",
	"https://candidate-intake-production.up.railway.app",
	"https://kyuujin-pdf-tool-production.up.railway.app",
}

// AllowedOrigins merges the companion origins with configured extras.
// Wildcards and values without an http(s) scheme are dropped.
func AllowedOrigins(extra []string) []string {
	seen := make(map[string]struct{}, len(CompanionOrigins)+len(extra))
	out := make([]string, 0, len(CompanionOrigins)+len(extra))
	for _, origin := range append(append([]string{}, CompanionOrigins...), extra...) {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" || strings.Contains(origin, "*") {
			continue
		}
		if !strings.HasPrefix(origin, "https://") && !strings.HasPrefix(origin, "http://") {
			continue
		}
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		out = append(out, origin)
	}
	return out
}

// CORS reflects credentialed CORS headers for allow-listed origins only. Preflights answer 204.
func CORS(extra []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     AllowedOrigins(extra),
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
