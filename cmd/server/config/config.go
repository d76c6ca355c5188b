// Package config loads the server configuration from the environment with
// development-friendly defaults.
package config

import (
	"os"
	"strconv"
	"strings"

	auth "github.com/JOHN-REY-CARLO-A-GEMAO/gemao-finals"
)

type AppConfig struct {
	Server      ServerConfig
	Persistence PersistenceConfig
	Auth        AuthConfig
	SMTP        auth.SMTPConfig
	SeedUsers   bool
	ReapMinutes int
}

type ServerConfig struct {
	Address string
	Debug   bool
}

type PersistenceConfig struct {
	DSN string
}

// AuthConfig satisfies auth.Config.
type AuthConfig struct {
	SigningKey           string
	ContextKey           string
	SessionMinutes       int
	Issuer               string
	Audience             []string
	SecureCookies        bool
	RejectedRouteKey     string
	RejectedRouteDefault string
}

func (c AuthConfig) GetSigningKey() string           { return c.SigningKey }
func (c AuthConfig) GetContextKey() string           { return c.ContextKey }
func (c AuthConfig) GetSessionDuration() int         { return c.SessionMinutes }
func (c AuthConfig) GetIssuer() string               { return c.Issuer }
func (c AuthConfig) GetAudience() []string           { return c.Audience }
func (c AuthConfig) GetSecureCookies() bool          { return c.SecureCookies }
func (c AuthConfig) GetRejectedRouteKey() string     { return c.RejectedRouteKey }
func (c AuthConfig) GetRejectedRouteDefault() string { return c.RejectedRouteDefault }

// Load reads the environment once at boot. Missing values fall back to
// development defaults; the signing key default is unusable in production
// on purpose.
func Load() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Address: env("SERVER_ADDRESS", ":8080"),
			Debug:   envBool("SERVER_DEBUG", false),
		},
		Persistence: PersistenceConfig{
			DSN: env("DATABASE_DSN", "file:app.db?cache=shared&_pragma=foreign_keys(1)"),
		},
		Auth: AuthConfig{
			SigningKey:           env("AUTH_SIGNING_KEY", "dev-signing-key-change-me"),
			ContextKey:           env("AUTH_CONTEXT_KEY", "session_token"),
			SessionMinutes:       envInt("AUTH_SESSION_MINUTES", 30),
			Issuer:               env("AUTH_ISSUER", "gemao-finals"),
			Audience:             envList("AUTH_AUDIENCE", "web"),
			SecureCookies:        envBool("AUTH_SECURE_COOKIES", false),
			RejectedRouteKey:     env("AUTH_REJECTED_ROUTE_KEY", "rejected_route"),
			RejectedRouteDefault: env("AUTH_REJECTED_ROUTE_DEFAULT", "/dashboard"),
		},
		SMTP: auth.SMTPConfig{
			Host:     env("SMTP_HOST", "localhost"),
			Port:     envInt("SMTP_PORT", 1025),
			Username: env("SMTP_USERNAME", ""),
			Password: env("SMTP_PASSWORD", ""),
			From:     env("SMTP_FROM", "no-reply@localhost"),
		},
		SeedUsers:   envBool("SEED_USERS", false),
		ReapMinutes: envInt("PASSCODE_REAP_MINUTES", 10),
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envList(key, def string) []string {
	v := env(key, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
