// Package config provides configuration management for the reference engine.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LiteConfig is a simplified configuration for the local tool host.
// It requires no external services and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for reference.db and exports

	// Cache settings
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL
	RedisURL      string        // Optional: shared cache and session store

	// Session
	SessionTTL time.Duration

	// Tool host
	ToolRate      float64 // Tool calls per second, 0 disables throttling
	AdminPassword string

	// Metrics textfile, empty disables export
	MetricsFile string

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultDataDir returns ~/.pharmref, or a relative .pharmref when the home
// directory is unknown.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".pharmref"
	}
	return filepath.Join(homeDir, ".pharmref")
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	return &LiteConfig{
		DataDir:       DefaultDataDir(),
		CacheMaxItems: 1000,
		CacheTTL:      time.Hour,
		SessionTTL:    12 * time.Hour,
		ToolRate:      20,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("PHARMREF_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("PHARMREF_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("PHARMREF_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CacheTTL = d
		}
	}
	cfg.RedisURL = os.Getenv("PHARMREF_REDIS_URL")

	if v := os.Getenv("PHARMREF_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SessionTTL = d
		}
	}

	if v := os.Getenv("PHARMREF_TOOL_RATE"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r >= 0 {
			cfg.ToolRate = r
		}
	}
	cfg.AdminPassword = os.Getenv("PHARMREF_ADMIN_PASSWORD")
	cfg.MetricsFile = os.Getenv("PHARMREF_METRICS_FILE")

	if v := os.Getenv("PHARMREF_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PHARMREF_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// DatabasePath returns the path to the reference SQLite database.
func (c *LiteConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "reference.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
