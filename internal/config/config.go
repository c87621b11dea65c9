// Package config provides centralized configuration management for the application.
// It loads configuration from an optional YAML file and environment variables
// with sensible defaults, and validates all settings on startup to fail fast
// on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Every setting can come from the environment; the environment always
// overrides the YAML file named by TABLESIFT_CONFIG.
type Config struct {
	Server  ServerConfig    `yaml:"server"`
	Load    LoadConfig      `yaml:"load"`
	Search  SearchConfig    `yaml:"search"`
	Render  RenderConfig    `yaml:"render"`
	Export  ExportConfig    `yaml:"export"`
	Rate    RateLimitConfig `yaml:"rate"`
	Logging LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `yaml:"host" env:"SERVER_HOST" env-default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `yaml:"port" env:"SERVER_PORT" env-default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" env-default:"60s"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `yaml:"enable_csp" env:"SERVER_ENABLE_CSP" env-default:"true"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP and X-Forwarded-For headers are honoured
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" env-separator:","`

	// APIKeys enables X-API-Key authentication on /api when non-empty.
	// Secret, env only.
	APIKeys []string `yaml:"-" env:"API_KEYS" env-separator:","`
}

// LoadConfig holds file ingestion settings.
type LoadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `yaml:"max_file_size" env:"LOAD_MAX_FILE_SIZE" env-default:"104857600"`

	// ChunkSize is the number of rows read between progress reports (default: 50000)
	ChunkSize int `yaml:"chunk_size" env:"LOAD_CHUNK_SIZE" env-default:"50000"`

	// Timeout bounds a single load; 0 disables it (default: 0)
	Timeout time.Duration `yaml:"timeout" env:"LOAD_TIMEOUT" env-default:"0s"`
}

// SearchConfig holds query engine settings.
type SearchConfig struct {
	// ShardSize is the number of rows each parallel search worker scans (default: 16384)
	ShardSize int `yaml:"shard_size" env:"SEARCH_SHARD_SIZE" env-default:"16384"`
}

// RenderConfig holds grid display settings.
type RenderConfig struct {
	// PageSize is the default number of rows per grid page (default: 100)
	PageSize int `yaml:"page_size" env:"RENDER_PAGE_SIZE" env-default:"100"`

	// MaxPageSize caps the rows a single grid request may ask for (default: 1000)
	MaxPageSize int `yaml:"max_page_size" env:"RENDER_MAX_PAGE_SIZE" env-default:"1000"`

	// MaxCellWidth truncates cell text in display columns; 0 disables it (default: 0)
	MaxCellWidth int `yaml:"max_cell_width" env:"RENDER_MAX_CELL_WIDTH" env-default:"0"`

	// MemoLimit caps memoized cell texts (default: 200000)
	MemoLimit int `yaml:"memo_limit" env:"RENDER_MEMO_LIMIT" env-default:"200000"`
}

// ExportConfig holds export sink settings.
type ExportConfig struct {
	// DatabaseURL enables PostgreSQL export when set. Secret, env only.
	DatabaseURL string `yaml:"-" env:"EXPORT_DATABASE_URL"`

	// Schema is the schema export tables are created in (default: public)
	Schema string `yaml:"schema" env:"EXPORT_SCHEMA" env-default:"public"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `yaml:"enabled" env:"RATE_LIMIT_ENABLED" env-default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `yaml:"requests_per_minute" env:"RATE_LIMIT_REQUESTS_PER_MINUTE" env-default:"300"`

	// LoadLimit is requests per minute for load and export endpoints (default: 20)
	LoadLimit int `yaml:"load_limit" env:"RATE_LIMIT_LOAD" env-default:"20"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ExportEnabled reports whether a PostgreSQL export sink is configured.
func (c *ExportConfig) ExportEnabled() bool {
	return c.DatabaseURL != ""
}
