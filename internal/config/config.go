package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
)

// Environment names.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

const (
	defaultPort              = 8080
	defaultLoginPerMinute    = 10
	defaultVerifyPerMinute   = 60
	defaultRedisPrefix       = "portal:rl"
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
	defaultLogFile           = "logs/portal.log"
	defaultLogFileMaxSizeMB  = 50
	defaultLogFileMaxBackups = 5
)

var (
	// ErrMissingDatabaseDSN indicates no database DSN is configured.
	ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` in config file or DB_CONNECTION)")
	// ErrMissingSessionSecret indicates no cookie signing secret is configured.
	ErrMissingSessionSecret = errors.New("missing session secret (set `session-secret` in config file or SESSION_SECRET)")
	// ErrMissingVaultSecret indicates no credential encryption secret is configured.
	ErrMissingVaultSecret = errors.New("missing vault secret (set `vault-secret` in config file or CREDENTIAL_ENCRYPTION_SECRET)")
)

// AppConfig holds the resolved location of the configuration file.
type AppConfig struct {
	ConfigPath string
}

// Config is the immutable runtime configuration built once at startup.
type Config struct {
	Environment string `yaml:"environment" envconfig:"APP_ENV"`
	Host        string `yaml:"host" envconfig:"HOST"`
	Port        int    `yaml:"port" envconfig:"PORT"`

	DatabaseDSN string `yaml:"database-dsn" envconfig:"DB_CONNECTION"`

	SessionSecret string `yaml:"session-secret" envconfig:"SESSION_SECRET"`
	VaultSecret   string `yaml:"vault-secret" envconfig:"CREDENTIAL_ENCRYPTION_SECRET"`

	// CORSAllowedOrigins extends the built-in companion origins. Never "*".
	CORSAllowedOrigins []string `yaml:"cors-allowed-origins" envconfig:"CORS_ALLOWED_ORIGINS"`

	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For is honoured.
	// Empty trusts no proxy and the client IP is the socket peer.
	TrustedProxies []string `yaml:"trusted-proxies" envconfig:"TRUSTED_PROXIES"`

	Apps      AppURLs         `yaml:"apps" envconfig:"APPS"`
	RateLimit RateLimitConfig `yaml:"rate-limit" envconfig:"RATE_LIMIT"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOG"`
}

// AppURLs overrides the launch URL of each companion application.
type AppURLs struct {
	MaterialCreator string `yaml:"material-creator" envconfig:"MATERIAL_CREATOR_URL"`
	JobAnalyzer     string `yaml:"job-analyzer" envconfig:"JOB_ANALYZER_URL"`
	CandidateIntake string `yaml:"candidate-intake" envconfig:"CANDIDATE_INTAKE_URL"`
}

// RateLimitConfig throttles credential guessing on login and token verification.
type RateLimitConfig struct {
	LoginPerMinute  int         `yaml:"login-per-minute" envconfig:"LOGIN_PER_MINUTE"`
	VerifyPerMinute int         `yaml:"verify-per-minute" envconfig:"VERIFY_PER_MINUTE"`
	Redis           RedisConfig `yaml:"redis" envconfig:"REDIS"`
}

// RedisConfig configures the shared limiter backend.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" envconfig:"ENABLED"`
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
	Prefix   string `yaml:"prefix" envconfig:"PREFIX"`
}

// LoggingConfig configures logrus output.
type LoggingConfig struct {
	Level      string `yaml:"level" envconfig:"LEVEL"`
	Format     string `yaml:"format" envconfig:"FORMAT"`
	ToFile     bool   `yaml:"to-file" envconfig:"TO_FILE"`
	File       string `yaml:"file" envconfig:"FILE"`
	MaxSizeMB  int    `yaml:"max-size-mb" envconfig:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max-backups" envconfig:"MAX_BACKUPS"`
}

// IsProduction reports whether cookies must carry the Secure attribute.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentProduction)
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports missing required settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return ErrMissingDatabaseDSN
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		return ErrMissingSessionSecret
	}
	if strings.TrimSpace(c.VaultSecret) == "" {
		return ErrMissingVaultSecret
	}
	for _, origin := range c.CORSAllowedOrigins {
		if strings.TrimSpace(origin) == "*" {
			return fmt.Errorf("cors-allowed-origins: wildcard origin is not allowed")
		}
	}
	return nil
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process environment.
// Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, errStat := os.Stat(p); errStat != nil {
			if os.IsNotExist(errStat) {
				continue
			}
			return fmt.Errorf("stat %s: %w", p, errStat)
		}
		if errLoad := godotenv.Load(p); errLoad != nil {
			return fmt.Errorf("load %s: %w", p, errLoad)
		}
	}
	return nil
}

// Load reads the YAML file at configPath, when present, then applies environment overrides.
func Load(configPath string) (Config, error) {
	cfg := Config{}

	data, errRead := os.ReadFile(configPath)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case os.IsNotExist(errRead):
	default:
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	if errEnv := envconfig.Process("", &cfg); errEnv != nil {
		return Config{}, fmt.Errorf("apply environment: %w", errEnv)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

// LoadDatabaseDSN reads only the database DSN, for commands that need nothing else.
func LoadDatabaseDSN(configPath string) (string, error) {
	cfg, errLoad := Load(configPath)
	if errLoad != nil {
		return "", errLoad
	}
	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

func applyDefaults(cfg *Config) {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	if cfg.Environment == "" {
		cfg.Environment = EnvironmentDevelopment
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	cfg.DatabaseDSN = strings.TrimSpace(cfg.DatabaseDSN)

	origins := make([]string, 0, len(cfg.CORSAllowedOrigins))
	for _, origin := range cfg.CORSAllowedOrigins {
		if trimmed := strings.TrimRight(strings.TrimSpace(origin), "/"); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.CORSAllowedOrigins = origins

	var proxies []string
	for _, proxy := range cfg.TrustedProxies {
		if trimmed := strings.TrimSpace(proxy); trimmed != "" {
			proxies = append(proxies, trimmed)
		}
	}
	cfg.TrustedProxies = proxies

	if cfg.RateLimit.LoginPerMinute <= 0 {
		cfg.RateLimit.LoginPerMinute = defaultLoginPerMinute
	}
	if cfg.RateLimit.VerifyPerMinute <= 0 {
		cfg.RateLimit.VerifyPerMinute = defaultVerifyPerMinute
	}
	cfg.RateLimit.Redis.Addr = strings.TrimSpace(cfg.RateLimit.Redis.Addr)
	cfg.RateLimit.Redis.Prefix = strings.TrimSpace(cfg.RateLimit.Redis.Prefix)
	if cfg.RateLimit.Redis.Prefix == "" {
		cfg.RateLimit.Redis.Prefix = defaultRedisPrefix
	}
	if cfg.RateLimit.Redis.DB < 0 {
		cfg.RateLimit.Redis.DB = 0
	}

	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(cfg.Logging.Format) == "" {
		cfg.Logging.Format = defaultLogFormat
	}
	if strings.TrimSpace(cfg.Logging.File) == "" {
		cfg.Logging.File = defaultLogFile
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = defaultLogFileMaxSizeMB
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = defaultLogFileMaxBackups
	}
}
