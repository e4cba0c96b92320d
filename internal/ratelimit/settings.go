package ratelimit

import (
	"strings"

	"github.com/bizstudio/portal/internal/config"
)

// SettingsConfig captures the limiter backend settings.
type SettingsConfig struct {
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsFromConfig maps the runtime configuration to limiter settings.
func SettingsFromConfig(cfg config.RateLimitConfig) SettingsConfig {
	settings := SettingsConfig{
		RedisEnabled:  cfg.Redis.Enabled,
		RedisAddr:     strings.TrimSpace(cfg.Redis.Addr),
		RedisPassword: strings.TrimSpace(cfg.Redis.Password),
		RedisDB:       cfg.Redis.DB,
		RedisPrefix:   strings.TrimSpace(cfg.Redis.Prefix),
	}
	if settings.RedisDB < 0 {
		settings.RedisDB = 0
	}
	return settings
}

// StaticSettings returns a provider that always yields settings.
func StaticSettings(settings SettingsConfig) SettingsProvider {
	return func() SettingsConfig { return settings }
}
