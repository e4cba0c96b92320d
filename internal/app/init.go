package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bizstudio/portal/internal/config"
	"github.com/bizstudio/portal/internal/db"
	"github.com/bizstudio/portal/internal/invite"
	"github.com/bizstudio/portal/internal/models"
	"github.com/bizstudio/portal/internal/security"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

var (
	// ErrAdminExists indicates the email already belongs to an account.
	ErrAdminExists = errors.New("an account with this email already exists")
	// ErrConfigExists indicates init would overwrite an existing config file.
	ErrConfigExists = errors.New("config file already exists")
)

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "portal.db"

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	DatabaseDSN string `yaml:"database-dsn"`
	Session     string `yaml:"session-secret"`
	Vault       string `yaml:"vault-secret"`
}

// generateSecret creates a random secret for the generated config file.
func generateSecret() (string, error) {
	secret, err := security.GenerateToken("")
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return secret, nil
}

// WriteConfigFile writes a starter config file with fresh secrets. An empty dsn selects a local SQLite file.
func WriteConfigFile(configPath, dsn string, port int) error {
	if ConfigExists(configPath) {
		return ErrConfigExists
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "file:" + defaultSQLitePath
	}
	if _, errDescribe := db.DescribeDSN(dsn); errDescribe != nil {
		return fmt.Errorf("invalid dsn: %w", errDescribe)
	}

	sessionSecret, errSession := generateSecret()
	if errSession != nil {
		return errSession
	}
	vaultSecret, errVault := generateSecret()
	if errVault != nil {
		return errVault
	}
	cfg := configFile{
		Environment: config.EnvironmentDevelopment,
		Port:        port,
		DatabaseDSN: dsn,
		Session:     sessionSecret,
		Vault:       vaultSecret,
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}
	return nil
}

// CreateAdminUser opens the database, migrates it and creates an admin account.
func CreateAdminUser(dsn, email, name, password string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if errClose := db.Close(conn); errClose != nil {
			log.WithError(errClose).Warn("close database failed")
		}
	}()

	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	return CreateAdminUserWithConn(conn, email, name, password)
}

// CreateAdminUserWithConn creates an active admin account.
func CreateAdminUserWithConn(conn *gorm.DB, email, name, password string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}
	email = models.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if !strings.Contains(email, "@") {
		return fmt.Errorf("a valid email is required")
	}
	if name == "" {
		name = email
	}
	if len(password) < invite.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", invite.MinPasswordLength)
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	now := time.Now().UTC()
	admin := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         models.RoleAdmin,
		Status:       models.StatusActive,
		PasswordHash: hashedPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return ErrAdminExists
		}
		return fmt.Errorf("create admin: %w", errCreate)
	}
	return nil
}
