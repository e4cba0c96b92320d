package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bizstudio/portal/internal/apptoken"
	"github.com/bizstudio/portal/internal/audit"
	"github.com/bizstudio/portal/internal/config"
	"github.com/bizstudio/portal/internal/credential"
	"github.com/bizstudio/portal/internal/db"
	"github.com/bizstudio/portal/internal/http/api/admin"
	"github.com/bizstudio/portal/internal/http/api/front"
	"github.com/bizstudio/portal/internal/http/middleware"
	"github.com/bizstudio/portal/internal/invite"
	"github.com/bizstudio/portal/internal/ratelimit"
	"github.com/bizstudio/portal/internal/security"
	"github.com/bizstudio/portal/internal/session"
	"github.com/bizstudio/portal/internal/systems"
	"github.com/bizstudio/portal/internal/users"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := db.Close(conn); errClose != nil {
			log.WithError(errClose).Warn("close database failed")
		}
	}()
	return db.Migrate(conn.WithContext(ctx))
}

// NewEngine wires every service onto a gin engine. limiter may be nil to disable throttling.
func NewEngine(conn *gorm.DB, cfg config.Config, limiter middleware.Allower) (*gin.Engine, error) {
	vault, errVault := security.NewVault(cfg.VaultSecret)
	if errVault != nil {
		return nil, errVault
	}

	auditWriter := audit.NewWriter(conn, nil)
	sessions := session.NewService(conn, auditWriter, session.Options{
		Secret: cfg.SessionSecret,
		Secure: cfg.IsProduction(),
	})
	invites := invite.NewService(conn, auditWriter, nil)
	systemLinks := systems.NewService(conn, auditWriter, nil)
	appTokens := apptoken.NewService(conn, auditWriter, systemLinks, apptoken.Options{
		Registry: apptoken.NewRegistry(cfg.Apps),
	})
	credentials := credential.NewService(conn, auditWriter, vault, nil)
	userService := users.NewService(conn, auditWriter, nil)

	engine := gin.New()
	if errProxies := engine.SetTrustedProxies(cfg.TrustedProxies); errProxies != nil {
		return nil, fmt.Errorf("trusted proxies: %w", errProxies)
	}
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger())

	front.RegisterFrontRoutes(engine, front.Services{
		Sessions:    sessions,
		Invites:     invites,
		AppTokens:   appTokens,
		Credentials: credentials,
		Systems:     systemLinks,
	}, front.Options{
		CORSOrigins: cfg.CORSAllowedOrigins,
		Limiter:     limiter,
		RateLimit:   cfg.RateLimit,
	})
	admin.RegisterAdminRoutes(engine, conn, admin.Services{
		Sessions:    sessions,
		Invites:     invites,
		Users:       userService,
		Credentials: credentials,
		Systems:     systemLinks,
		Audit:       auditWriter,
	})
	return engine, nil
}

// RunServer serves the portal until ctx is cancelled, then drains in-flight requests.
func RunServer(ctx context.Context, appCfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		return errValidate
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if info, errDescribe := db.DescribeDSN(cfg.DatabaseDSN); errDescribe == nil {
		log.Infof("using database %s", info)
	}
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := db.Close(conn); errClose != nil {
			log.WithError(errClose).Warn("close database failed")
		}
	}()
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	if !initialized {
		log.Warn("no active admin account; run the create-admin command")
	}

	limiter := ratelimit.NewManager(ratelimit.StaticSettings(ratelimit.SettingsFromConfig(cfg.RateLimit)), nil, nil)
	defer func() {
		if errClose := limiter.Close(); errClose != nil {
			log.WithError(errClose).Warn("close rate limiter failed")
		}
	}()

	engine, err := NewEngine(conn, cfg, limiter)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("portal listening on %s (env=%s)", cfg.Addr(), cfg.Environment)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			serveErr <- errServe
		}
		close(serveErr)
	}()

	select {
	case errServe := <-serveErr:
		if errServe != nil {
			return fmt.Errorf("serve: %w", errServe)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	return nil
}
