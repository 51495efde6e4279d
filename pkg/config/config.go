// Package config holds the environment-driven configuration of the device
// gate service. Structs carry cleanenv tags and are read in the service
// entrypoint; helpers here validate the values before anything is wired.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `env:"GATE_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"GATE_PG_PORT" env-default:"5432"`
	Database string `env:"GATE_PG_DATABASE" env-default:"devicegate_db"`
	User     string `env:"GATE_PG_USER" env-default:"devicegate"`
	Password string `env:"GATE_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"GATE_PG_SCHEMA" env-default:"public"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

// JwtConfig holds token verification settings for the auth layer and the
// revocation token service
type JwtConfig struct {
	Secret         string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer         string `env:"JWT_ISSUER" env-default:"device-gate"`
	CookieHttpOnly bool   `env:"COOKIE_HTTP_ONLY" env-default:"true"`
	CookieSecure   bool   `env:"COOKIE_SECURE" env-default:"true"`
}

// GateConfig holds the enforcement settings of the device gate
type GateConfig struct {
	// MaxDevices is the per-user device cap
	MaxDevices int `env:"GATE_MAX_DEVICES" env-default:"1"`
	// DenialURL is where blocked users are redirected
	DenialURL string `env:"GATE_DENIAL_URL" env-default:"/device-limit"`
	// AdminPathPrefix is never intercepted so a blocked account can
	// still be revoked
	AdminPathPrefix string `env:"GATE_ADMIN_PATH_PREFIX" env-default:"/admin"`
	// BypassPrefixes lists additional comma-separated path prefixes the
	// gate ignores
	BypassPrefixes string `env:"GATE_BYPASS_PREFIXES" env-default:""`
	// RetryBudget bounds admission retries on write conflicts
	RetryBudget int `env:"GATE_RETRY_BUDGET" env-default:"3"`
	// PersistenceType selects the slot repository: postgres, file, inmem
	PersistenceType string `env:"GATE_PERSISTENCE_TYPE" env-default:"inmem"`
	// DataDir is the storage directory for the file repository
	DataDir string `env:"GATE_DATA_DIR" env-default:"./data"`
}

// SplitBypassPrefixes parses the comma-separated bypass list, always
// including the admin prefix
func (g GateConfig) SplitBypassPrefixes() []string {
	prefixes := []string{}
	if g.AdminPathPrefix != "" {
		prefixes = append(prefixes, g.AdminPathPrefix)
	}
	for _, p := range strings.Split(g.BypassPrefixes, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

// Validate checks the gate settings for values that would misconfigure
// enforcement
func (g GateConfig) Validate() error {
	if g.MaxDevices < 1 {
		return fmt.Errorf("GATE_MAX_DEVICES must be at least 1, got %d", g.MaxDevices)
	}
	if g.DenialURL == "" {
		return fmt.Errorf("GATE_DENIAL_URL is required")
	}
	if _, err := url.Parse(g.DenialURL); err != nil {
		return fmt.Errorf("GATE_DENIAL_URL is not a valid URL: %w", err)
	}
	if g.RetryBudget < 1 {
		return fmt.Errorf("GATE_RETRY_BUDGET must be at least 1, got %d", g.RetryBudget)
	}
	switch g.PersistenceType {
	case "postgres", "file", "inmem":
	default:
		return fmt.Errorf("GATE_PERSISTENCE_TYPE must be postgres, file or inmem, got %q", g.PersistenceType)
	}
	return nil
}

// EmailConfig holds SMTP settings for block notifications. Notifications
// stay disabled while Host is empty.
type EmailConfig struct {
	Host     string `env:"SMTP_HOST" env-default:""`
	Port     int    `env:"SMTP_PORT" env-default:"1025"`
	TLS      bool   `env:"SMTP_TLS" env-default:"false"`
	Username string `env:"SMTP_USERNAME" env-default:""`
	Password string `env:"SMTP_PASSWORD" env-default:""`
	From     string `env:"SMTP_FROM" env-default:"noreply@example.com"`
	To       string `env:"SMTP_TO" env-default:"ops@example.com"`
}

// Enabled reports whether block notification email is configured
func (e EmailConfig) Enabled() bool {
	return e.Host != ""
}
