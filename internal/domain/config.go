package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Session SessionConfig `mapstructure:"session"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	MCP     MCPConfig     `mapstructure:"mcp"`
}

// StorageConfig selects and configures the reference data store
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"` // "sqlite", "postgres"
	DataDir  string         `mapstructure:"data_dir"`
	Postgres DatabaseConfig `mapstructure:"postgres"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig represents lookup cache configuration
type CacheConfig struct {
	MaxItems   int           `mapstructure:"max_items"`
	RedisURL   string        `mapstructure:"redis_url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	PoolSize   int           `mapstructure:"pool_size"`
}

// SessionConfig controls where session state lives and when it expires
type SessionConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// AdminConfig guards the administrative commands
type AdminConfig struct {
	Password string `mapstructure:"password"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the prometheus textfile export
type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	File     string        `mapstructure:"file"`
	Interval time.Duration `mapstructure:"interval"`
}

// MCPConfig represents MCP tool host configuration
type MCPConfig struct {
	ServerName     string        `mapstructure:"server_name"`
	ServerVersion  string        `mapstructure:"server_version"`
	ToolRateLimit  float64       `mapstructure:"tool_rate_limit"` // calls per second, 0 disables
	ToolBurst      int           `mapstructure:"tool_burst"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}
