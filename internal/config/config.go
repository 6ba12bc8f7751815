// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Session  SessionConfig
	History  HistoryConfig
	Events   EventsConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the optional PostgreSQL connection used for analysis history.
// When URL is empty, history is kept in memory.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// UploadConfig holds CSV upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is the maximum number of files parsed in parallel (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a parse slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for the upload endpoint (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey protects /api routes with the X-API-Key header (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// AllowedOrigins is a comma-separated list of CORS origins for /api
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// SessionConfig holds per-browser analysis session settings.
type SessionConfig struct {
	// TTL is how long an idle session keeps its dataset (default: 1h)
	TTL time.Duration `env:"SESSION_TTL" default:"1h"`

	// SweepInterval is how often idle sessions are evicted (default: 5m)
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" default:"5m"`

	CookieName   string `env:"SESSION_COOKIE_NAME" default:"threatboard_session"`
	CookieSecure bool   `env:"SESSION_COOKIE_SECURE" default:"false"`
}

// HistoryConfig holds analysis history settings.
type HistoryConfig struct {
	// Capacity bounds the in-memory history (default: 200)
	Capacity int `env:"HISTORY_CAPACITY" default:"200"`

	// RetentionDays is how long analysis runs are kept (default: 30)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"30"`

	// CheckInterval is how often the retention job runs (default: 1h)
	CheckInterval time.Duration `env:"HISTORY_CHECK_INTERVAL" default:"1h"`
}

// Retention returns RetentionDays as a duration.
func (c HistoryConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// EventsConfig holds the optional NATS publisher settings.
type EventsConfig struct {
	// NATSURL enables publishing of completed analyses when set
	NATSURL string `env:"NATS_URL"`

	// SubjectPrefix is prepended to event subjects (default: threatboard)
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" default:"threatboard"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
