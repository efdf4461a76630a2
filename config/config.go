// Package config loads application settings from the environment (and an optional .env file).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	SMTP     SMTPConfig
	Google   GoogleConfig
	App      AppConfig
}

type ServerConfig struct {
	Port            string
	AllowedOrigins  string
	BodyLimitBytes  int
	RateLimitMax    int
	RateLimitWindow time.Duration
}

type DatabaseConfig struct {
	Driver   string // postgres | sqlite
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TimeZone     string
}

type AppConfig struct {
	Env              string
	FrontendURL      string
	CompanyName      string
	BankName         string
	BankIBAN         string
	PDFDir           string
	RemindersEnabled bool
}

// ConnString returns the DSN for the configured driver. DATABASE_DSN wins when set.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "sqlite" {
		return d.Name + ".db"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

func (a AppConfig) Development() bool {
	return a.Env == "development"
}

// Load reads configuration from environment variables. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "5000"),
			AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "*"),
			BodyLimitBytes:  getEnvInt("BODY_LIMIT_MB", 10) * 1024 * 1024,
			RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 100),
			RateLimitWindow: time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			DSN:      os.Getenv("DATABASE_DSN"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "crm"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "crm"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  time.Duration(getEnvInt("JWT_TTL_HOURS", 24*30)) * time.Hour,
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvInt("SMTP_PORT", 587),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "no-reply@localhost"),
		},
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURI:  os.Getenv("GOOGLE_REDIRECT_URI"),
			TimeZone:     getEnv("CALENDAR_TIMEZONE", "Europe/Istanbul"),
		},
		App: AppConfig{
			Env:              getEnv("APP_ENV", "production"),
			FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:3000"),
			CompanyName:      getEnv("COMPANY_NAME", "CRM"),
			BankName:         os.Getenv("BANK_NAME"),
			BankIBAN:         os.Getenv("BANK_IBAN"),
			PDFDir:           getEnv("PDF_DIR", "uploads/pdfs"),
			RemindersEnabled: getEnvBool("REMINDERS_ENABLED", true),
		},
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT secret not configured (set JWT_SECRET)")
	}
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// getEnvBool accepts anything strconv.ParseBool understands; invalid values fall back to def.
func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
