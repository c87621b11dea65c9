package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding an optional YAML config path.
const FileEnv = "TABLESIFT_CONFIG"

// Load reads configuration from the file named by TABLESIFT_CONFIG (if set)
// and the environment, applies defaults for unset values and validates the
// result.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit config file path. An empty path reads
// the environment only.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Usage writes a description of every environment variable.
func Usage(w io.Writer) error {
	desc, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, desc)
	return err
}

// WriteYAML writes the configuration in the TABLESIFT_CONFIG file format.
// Secrets are never written.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "SERVER_REQUEST_TIMEOUT must be positive")
	}

	// Load validation
	if c.Load.MaxFileSize <= 0 {
		errs = append(errs, "LOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Load.ChunkSize <= 0 {
		errs = append(errs, "LOAD_CHUNK_SIZE must be positive")
	}
	if c.Load.Timeout < 0 {
		errs = append(errs, "LOAD_TIMEOUT must be non-negative")
	}

	// Search validation
	if c.Search.ShardSize <= 0 {
		errs = append(errs, "SEARCH_SHARD_SIZE must be positive")
	}

	// Render validation
	if c.Render.PageSize <= 0 {
		errs = append(errs, "RENDER_PAGE_SIZE must be positive")
	}
	if c.Render.MaxPageSize < c.Render.PageSize {
		errs = append(errs, fmt.Sprintf("RENDER_MAX_PAGE_SIZE (%d) must be >= RENDER_PAGE_SIZE (%d)",
			c.Render.MaxPageSize, c.Render.PageSize))
	}
	if c.Render.MaxCellWidth < 0 {
		errs = append(errs, "RENDER_MAX_CELL_WIDTH must be non-negative")
	}
	if c.Render.MemoLimit < 0 {
		errs = append(errs, "RENDER_MEMO_LIMIT must be non-negative")
	}

	// Export validation
	if c.Export.ExportEnabled() && c.Export.Schema == "" {
		errs = append(errs, "EXPORT_SCHEMA is required when EXPORT_DATABASE_URL is set")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.LoadLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_LOAD must be positive when rate limiting is enabled")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The export database URL is masked.
func (c *Config) String() string {
	dbURL := "[UNSET]"
	if c.Export.ExportEnabled() {
		dbURL = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Load: {MaxFileSize: %d, ChunkSize: %d, Timeout: %s}, ",
		c.Load.MaxFileSize, c.Load.ChunkSize, c.Load.Timeout)
	fmt.Fprintf(&b, "Search: {ShardSize: %d}, ", c.Search.ShardSize)
	fmt.Fprintf(&b, "Render: {PageSize: %d, MaxPageSize: %d}, ", c.Render.PageSize, c.Render.MaxPageSize)
	fmt.Fprintf(&b, "Export: {DatabaseURL: %s, Schema: %q}, ", dbURL, c.Export.Schema)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
