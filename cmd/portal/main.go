package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bizstudio/portal/internal/app"
	"github.com/bizstudio/portal/internal/config"
	"github.com/bizstudio/portal/internal/logging"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// envAdminPassword supplies the create-admin password without putting it in shell history.
const envAdminPassword = "PORTAL_ADMIN_PASSWORD"

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if errRun := newRootCmd().ExecuteContext(ctx); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "portal",
		Short:         "Staffing portal: sign-in, invites and companion app handoff",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if errEnv := config.LoadDotEnv(".env"); errEnv != nil {
				return errEnv
			}
			appCfg := resolveAppConfig(cfgPath)
			cfg, errLoad := config.Load(appCfg.ConfigPath)
			if errLoad != nil {
				return errLoad
			}
			closer, errLog := logging.Setup(cfg.Logging)
			if errLog != nil {
				return errLog
			}
			cobra.OnFinalize(func() { _ = closer.Close() })
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunServer(cmd.Context(), resolveAppConfig(cfgPath))
		},
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (or env CONFIG_PATH)")

	cmd.AddCommand(newServeCmd(&cfgPath))
	cmd.AddCommand(newMigrateCmd(&cfgPath))
	cmd.AddCommand(newCreateAdminCmd(&cfgPath))
	cmd.AddCommand(newInitConfigCmd(&cfgPath))
	return cmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunServer(cmd.Context(), resolveAppConfig(*cfgPath))
		},
	}
}

func newMigrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if errMigrate := app.Migrate(cmd.Context(), resolveAppConfig(*cfgPath)); errMigrate != nil {
				return errMigrate
			}
			log.Info("migration completed")
			return nil
		},
	}
}

func newCreateAdminCmd(cfgPath *string) *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(password) == "" {
				password = os.Getenv(envAdminPassword)
			}
			if strings.TrimSpace(email) == "" || password == "" {
				return fmt.Errorf("--email and --password (or %s) are required", envAdminPassword)
			}
			appCfg := resolveAppConfig(*cfgPath)
			dsn, errDSN := config.LoadDatabaseDSN(appCfg.ConfigPath)
			if errDSN != nil {
				return errDSN
			}
			if errCreate := app.CreateAdminUser(dsn, email, name, password); errCreate != nil {
				return errCreate
			}
			log.WithField("email", strings.ToLower(strings.TrimSpace(email))).Info("admin account created")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "admin password (or env "+envAdminPassword+")")
	return cmd
}

func newInitConfigCmd(cfgPath *string) *cobra.Command {
	var dsn string
	var port int

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a starter config file with generated secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validatePort(port); err != nil {
				return err
			}
			appCfg := resolveAppConfig(*cfgPath)
			if errWrite := app.WriteConfigFile(appCfg.ConfigPath, dsn, port); errWrite != nil {
				return errWrite
			}
			log.Infof("config written to %s", appCfg.ConfigPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "database DSN (default: local SQLite file)")
	cmd.Flags().IntVar(&port, "port", 8080, "server port")
	return cmd
}

// resolveAppConfig applies the --config flag over CONFIG_PATH.
func resolveAppConfig(cfgPath string) config.AppConfig {
	appCfg, _ := config.LoadFromEnv()
	if strings.TrimSpace(cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(cfgPath)
	}
	return appCfg
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
