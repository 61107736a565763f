// Package config handles application configuration and environment loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Default tuning values. Chunk sizes match what large imports tolerate on
// a few GB of RAM; the fast strategies batch internally with the larger one.
const (
	DefaultChunkSize     = 50000
	DefaultFastChunkSize = 100000
	DefaultSearchLimit   = 100
	MaxSearchLimit       = 1000
)

// Config holds the configuration for the import pipeline, the search
// store, and the HTTP API.
type Config struct {
	DBPath        string // path to the DuckDB store (":memory:" for tests)
	HistoryDBPath string // path to the SQLite search-history sidecar ("" disables history)
	ListenAddr    string // HTTP listen address (default ":8080")
	LogLevel      string // log level: debug, info, warn, error (default "info")
	Env           string // environment: "development" (default) or "production"

	// Import tuning
	ImportMethod  string // "auto" (default) or a single pinned method
	ChunkSize     int    // rows per streaming-import transaction
	FastChunkSize int    // internal batch size for bulk strategies

	// Search
	SearchLimit          int      // default page size
	MaxSearchLimit       int      // page size ceiling
	DefaultSearchColumns []string // fallback columns when nothing is indexed

	// DuckDB session tuning
	MemoryLimit string // e.g. "4GB"
	Threads     int

	// Upload boundary
	MaxUploadMB int64 // multipart upload size ceiling

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// History retention
	HistoryRetentionDays int // prune search history older than this (default 90)

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.ImportMethod {
	case "auto", "native-bulk", "appender-bulk", "csv-bridge", "streaming":
	default:
		return fmt.Errorf("invalid IMPORT_METHOD %q", c.ImportMethod)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.IsProduction() && len(c.CORSAllowedOrigins) == 1 && c.CORSAllowedOrigins[0] == "*" {
		return fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables, applying
// defaults for everything unset.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DBPath:        os.Getenv("DB_PATH"),
		HistoryDBPath: os.Getenv("HISTORY_DB_PATH"),
		ListenAddr:    os.Getenv("LISTEN_ADDR"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		Env:           os.Getenv("ENV"),
		ImportMethod:  os.Getenv("IMPORT_METHOD"),
		MemoryLimit:   os.Getenv("DUCKDB_MEMORY_LIMIT"),
		ChunkSize:     intEnv("CHUNK_SIZE", DefaultChunkSize),
		FastChunkSize: intEnv("FAST_IMPORT_CHUNK_SIZE", DefaultFastChunkSize),
		SearchLimit:   intEnv("DEFAULT_SEARCH_LIMIT", DefaultSearchLimit),

		MaxSearchLimit:       intEnv("MAX_SEARCH_LIMIT", MaxSearchLimit),
		Threads:              intEnv("DUCKDB_THREADS", 4),
		HistoryRetentionDays: intEnv("HISTORY_RETENTION_DAYS", 90),
		MaxUploadMB:          int64(intEnv("MAX_UPLOAD_MB", 100)),
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	if v := os.Getenv("DEFAULT_SEARCH_COLUMNS"); v != "" {
		cols := strings.Split(v, ",")
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		cfg.DefaultSearchColumns = compactNonEmpty(cols)
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults
	if cfg.DBPath == "" {
		cfg.DBPath = "products.duckdb"
	}
	if cfg.HistoryDBPath == "" {
		cfg.HistoryDBPath = "search_history.sqlite"
		cfg.Warnings = append(cfg.Warnings, "HISTORY_DB_PATH not set, search history recorded to search_history.sqlite")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ImportMethod == "" {
		cfg.ImportMethod = "auto"
	}
	if cfg.MemoryLimit == "" {
		cfg.MemoryLimit = "4GB"
	}
	if len(cfg.DefaultSearchColumns) == 0 {
		cfg.DefaultSearchColumns = []string{"ASSEMBLY", "DESCRIPTION"}
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// intEnv parses an integer environment variable, falling back to def when
// unset or malformed.
func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func compactNonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
