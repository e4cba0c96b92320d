package admin

import (
	"github.com/bizstudio/portal/internal/audit"
	"github.com/bizstudio/portal/internal/authz"
	"github.com/bizstudio/portal/internal/credential"
	handlers "github.com/bizstudio/portal/internal/http/api/admin/handlers"
	"github.com/bizstudio/portal/internal/http/middleware"
	"github.com/bizstudio/portal/internal/invite"
	"github.com/bizstudio/portal/internal/session"
	"github.com/bizstudio/portal/internal/systems"
	"github.com/bizstudio/portal/internal/users"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Services are the domain services behind the admin routes.
type Services struct {
	Sessions    *session.Service
	Invites     *invite.Service
	Users       *users.Service
	Credentials *credential.Service
	Systems     *systems.Service
	Audit       *audit.Writer
}

// RegisterAdminRoutes registers /healthz and the cookie-authenticated /admin routes.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, svc Services) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	authed := r.Group("/admin")
	authed.Use(middleware.LoadSessionUser(svc.Sessions))
	authed.Use(middleware.RequireRole(authz.RoleAdmin))

	inviteHandler := handlers.NewInviteHandler(svc.Invites)
	authed.POST("/invites", inviteHandler.Create)

	userHandler := handlers.NewUserHandler(svc.Users)
	authed.GET("/users", userHandler.List)
	authed.POST("/users/:id/status", userHandler.SetStatus)

	credentialHandler := handlers.NewCredentialHandler(svc.Credentials)
	authed.GET("/users/:id/credential", credentialHandler.Get)
	authed.PATCH("/users/:id/credential", credentialHandler.Update)
	authed.DELETE("/users/:id/credential", credentialHandler.Delete)

	auditHandler := handlers.NewAuditHandler(svc.Audit)
	authed.GET("/audit", auditHandler.List)

	systemHandler := handlers.NewSystemHandler(svc.Systems)
	authed.GET("/systems", systemHandler.List)
	authed.POST("/systems", systemHandler.Create)
	authed.PUT("/systems/:id", systemHandler.Update)
}
