package front

import (
	"time"

	"github.com/bizstudio/portal/internal/apptoken"
	"github.com/bizstudio/portal/internal/authz"
	"github.com/bizstudio/portal/internal/config"
	"github.com/bizstudio/portal/internal/credential"
	handlers "github.com/bizstudio/portal/internal/http/api/front/handlers"
	"github.com/bizstudio/portal/internal/http/middleware"
	"github.com/bizstudio/portal/internal/invite"
	"github.com/bizstudio/portal/internal/ratelimit"
	"github.com/bizstudio/portal/internal/session"
	"github.com/bizstudio/portal/internal/systems"
	"github.com/gin-gonic/gin"
)

const throttleWindow = time.Minute

// Services are the domain services behind the front routes.
type Services struct {
	Sessions    *session.Service
	Invites     *invite.Service
	AppTokens   *apptoken.Service
	Credentials *credential.Service
	Systems     *systems.Service
}

// Options tunes cross-origin access and attempt throttling.
type Options struct {
	CORSOrigins []string
	Limiter     middleware.Allower
	RateLimit   config.RateLimitConfig
}

// RegisterFrontRoutes registers the /auth, /users/me and /systems routes.
func RegisterFrontRoutes(r *gin.Engine, svc Services, opts Options) {
	if r == nil {
		return
	}

	authHandler := handlers.NewAuthHandler(svc.Sessions, svc.Invites)
	appTokenHandler := handlers.NewAppTokenHandler(svc.AppTokens)
	credentialHandler := handlers.NewCredentialHandler(svc.Credentials)
	systemHandler := handlers.NewSystemHandler(svc.Systems)

	authGroup := r.Group("/auth")
	authGroup.POST("/login",
		middleware.Throttle(opts.Limiter, ratelimit.AttemptLogin, opts.RateLimit.LoginPerMinute, throttleWindow),
		authHandler.Login)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.POST("/consume-invite",
		middleware.Throttle(opts.Limiter, ratelimit.AttemptInvite, opts.RateLimit.LoginPerMinute, throttleWindow),
		authHandler.ConsumeInvite)

	signedIn := r.Group("")
	signedIn.Use(middleware.LoadSessionUser(svc.Sessions))
	signedIn.Use(middleware.RequireRole(authz.RoleAny))
	signedIn.POST("/auth/issue-app-token", appTokenHandler.Issue)
	signedIn.GET("/systems", systemHandler.List)

	crossOrigin := r.Group("")
	crossOrigin.Use(middleware.CORS(opts.CORSOrigins))
	preflight := func(c *gin.Context) {}
	crossOrigin.OPTIONS("/auth/verify-app-token", preflight)
	crossOrigin.OPTIONS("/auth/me", preflight)
	crossOrigin.OPTIONS("/users/me/credential", preflight)

	crossOrigin.POST("/auth/verify-app-token",
		middleware.Throttle(opts.Limiter, ratelimit.AttemptVerifyToken, opts.RateLimit.VerifyPerMinute, throttleWindow),
		appTokenHandler.Verify)
	crossOrigin.GET("/auth/me", middleware.RequireAppSession(svc.AppTokens), appTokenHandler.Me)

	credentialGroup := crossOrigin.Group("/users/me/credential")
	credentialGroup.Use(middleware.RequireAppSessionOrCookie(svc.AppTokens, svc.Sessions))
	credentialGroup.GET("", credentialHandler.Get)
	credentialGroup.PATCH("", credentialHandler.Update)
	credentialGroup.DELETE("", credentialHandler.Delete)
}
