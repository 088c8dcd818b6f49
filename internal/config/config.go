package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                   string `mapstructure:"PORT"`
	AllowedOrigin          string `mapstructure:"ALLOWED_ORIGIN"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	DBAutoMigrate          bool   `mapstructure:"DB_AUTO_MIGRATE"`
	RedisAddr              string `mapstructure:"REDIS_ADDR"`
	RedisPassword          string `mapstructure:"REDIS_PASSWORD"`
	RedisDB                int    `mapstructure:"REDIS_DB"`
	ReportCacheTTLSeconds  int    `mapstructure:"REPORT_CACHE_TTL_SECONDS"`
	AuthSecret             string `mapstructure:"AUTH_SECRET"`
	AccessTokenTTLMinutes  int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	BootstrapAdminUsername string `mapstructure:"BOOTSTRAP_ADMIN_USERNAME"`
	BootstrapAdminPassword string `mapstructure:"BOOTSTRAP_ADMIN_PASSWORD"`
	LogLevel               string `mapstructure:"LOG_LEVEL"`
	LogPretty              bool   `mapstructure:"LOG_PRETTY"`
	ReportPDFFont          string `mapstructure:"REPORT_PDF_FONT"`
}

var defaults = map[string]any{
	"PORT":                     "8080",
	"ALLOWED_ORIGIN":           "http://127.0.0.1:3000",
	"DATABASE_URL":             "",
	"DB_AUTO_MIGRATE":          true,
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"REPORT_CACHE_TTL_SECONDS": 300,
	"AUTH_SECRET":              "",
	"ACCESS_TOKEN_TTL_MINUTES": 480,
	"BOOTSTRAP_ADMIN_USERNAME": "admin",
	"BOOTSTRAP_ADMIN_PASSWORD": "",
	"LOG_LEVEL":                "info",
	"LOG_PRETTY":               false,
	"REPORT_PDF_FONT":          "",
}

// Load reads configuration from the environment. Secrets have no defaults.
func Load() (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ReportPDFFont = strings.TrimSpace(cfg.ReportPDFFont)
	cfg.BootstrapAdminUsername = strings.ToLower(strings.TrimSpace(cfg.BootstrapAdminUsername))
	if cfg.ReportCacheTTLSeconds < 1 {
		cfg.ReportCacheTTLSeconds = 300
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
