// Package config loads the backend configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `env:"HOST,default=0.0.0.0"`
	Port int    `env:"PORT,default=8000"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
	Output string `env:"LOG_OUTPUT,default=stdout"`
}

// DatabaseConfig describes the Postgres connection. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=5m"`
	AutoMigrate     bool          `env:"AUTO_MIGRATE,default=true"`
}

// BotConfig holds the Telegram bot settings used when the database has none.
type BotConfig struct {
	Token   string `env:"BOT_TOKEN"`
	Enabled bool   `env:"ENABLE_BOT,default=true"`
	// APIEndpoint overrides the Telegram Bot API URL format (tests, proxies).
	APIEndpoint string `env:"TELEGRAM_API_ENDPOINT"`
}

// MakeConfig configures both directions of the Make integration.
type MakeConfig struct {
	// WebhookURL receives every incoming Telegram message.
	WebhookURL string `env:"MAKE_WEBHOOK_URL"`
	// OutgoingBearerToken is sent to WebhookURL when set.
	OutgoingBearerToken string `env:"MAKE_OUTGOING_BEARER_TOKEN"`
	// BearerToken guards the /make endpoints called by Make.
	BearerToken string        `env:"MAKE_BEARER_TOKEN"`
	Timeout     time.Duration `env:"MAKE_TIMEOUT,default=10s"`
	// RateLimit is requests per minute per client on /make endpoints.
	RateLimit int `env:"MAKE_RATE_LIMIT,default=600"`
}

// AdminConfig configures the admin panel and admin-only Make endpoints.
type AdminConfig struct {
	BearerToken   string `env:"ADMIN_BEARER_TOKEN"`
	PanelPassword string `env:"ADMIN_PANEL_PASSWORD"`
	SessionSecret string `env:"ADMIN_SESSION_SECRET"`
	CookieSecure  bool   `env:"ADMIN_COOKIE_SECURE,default=false"`
	CookieDomain  string `env:"ADMIN_COOKIE_DOMAIN"`
	CORSOrigins   string `env:"ADMIN_CORS_ORIGINS"`
	TelegramIDs   string `env:"ADMIN_TELEGRAM_IDS"`
	LoginRate     int    `env:"ADMIN_LOGIN_RATE,default=5"`
	// AuditLogPath appends admin mutations as JSON lines when set.
	AuditLogPath string `env:"ADMIN_AUDIT_LOG"`
}

// MediaConfig points at the uploaded media directory.
type MediaConfig struct {
	Root      string `env:"MEDIA_ROOT,default=./media"`
	URLPrefix string `env:"MEDIA_URL_PREFIX,default=/media"`
}

// MaintenanceConfig drives the periodic cleanup jobs.
type MaintenanceConfig struct {
	BotLogRetention  time.Duration `env:"BOT_LOG_RETENTION,default=720h"`
	MakeRequestStale time.Duration `env:"MAKE_REQUEST_STALE_AFTER,default=1h"`
}

// Config is the full process configuration.
type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Database    DatabaseConfig
	Bot         BotConfig
	Make        MakeConfig
	Admin       AdminConfig
	Media       MediaConfig
	Maintenance MaintenanceConfig

	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	Timezone      string `env:"TIMEZONE,default=Europe/Moscow"`
	RedisURL      string `env:"REDIS_URL"`

	location *time.Location
	adminIDs []int64
}

// Load reads envFile (".env" when empty) if it exists and decodes the
// environment. Variables already set in the process win over the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finalize() error {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	c.location = loc

	ids, err := parseIDs(c.Admin.TelegramIDs)
	if err != nil {
		return fmt.Errorf("ADMIN_TELEGRAM_IDS: %w", err)
	}
	c.adminIDs = ids

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Server.Port)
	}
	if c.Media.URLPrefix == "" || !strings.HasPrefix(c.Media.URLPrefix, "/") {
		return fmt.Errorf("MEDIA_URL_PREFIX must start with /")
	}
	return nil
}

// Location returns the timezone used for working-hours checks.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// AdminIDs returns the Telegram ids bootstrapped as admins.
func (c *Config) AdminIDs() []int64 {
	return append([]int64(nil), c.adminIDs...)
}

// CORSOrigins returns the trimmed, non-empty admin CORS origins.
func (c *Config) CORSOrigins() []string {
	return splitCSV(c.Admin.CORSOrigins)
}

// CallbackURL is the URL Make should call back, or "" without PUBLIC_BASE_URL.
func (c *Config) CallbackURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/make/callback"
}

func parseIDs(raw string) ([]int64, error) {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, part := range splitCSV(raw) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram id %q", part)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
