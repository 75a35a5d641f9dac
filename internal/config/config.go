package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pharmref-mcp-server/internal/domain"
)

// Manager loads domain.Config from a YAML file, PHARMREF_ environment
// variables and defaults, in that order of precedence (env wins).
type Manager struct {
	v      *viper.Viper
	file   string
	config *domain.Config
}

// NewManager creates a new configuration manager. An empty configFile
// searches the default locations for config.yaml.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{file: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.file != "" {
		v.SetConfigFile(m.file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/pharmref/")
	}

	v.SetEnvPrefix("PHARMREF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults registers every key so AutomaticEnv can bind it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.data_dir", DefaultDataDir())

	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.database", "pharmref")
	v.SetDefault("storage.postgres.username", "postgres")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.ssl_mode", "disable")
	v.SetDefault("storage.postgres.max_open_conns", 10)
	v.SetDefault("storage.postgres.max_idle_conns", 2)
	v.SetDefault("storage.postgres.conn_max_lifetime", "30m")
	v.SetDefault("storage.postgres.migrations_path", "")

	v.SetDefault("cache.max_items", 1000)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.pool_size", 10)

	v.SetDefault("session.redis_url", "")
	v.SetDefault("session.ttl", "12h")

	v.SetDefault("admin.password", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.file", "")
	v.SetDefault("metrics.interval", "15s")

	v.SetDefault("mcp.server_name", "pharmref-mcp-server")
	v.SetDefault("mcp.server_version", "v0.1.0")
	v.SetDefault("mcp.tool_rate_limit", 20.0)
	v.SetDefault("mcp.tool_burst", 40)
	v.SetDefault("mcp.request_timeout", "10s")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns the Postgres configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Storage.Postgres
}

// ConfigFileUsed returns the file that was read, or "" when running on
// defaults and environment only.
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	switch config.Storage.Driver {
	case "sqlite":
		if config.Storage.DataDir == "" {
			return fmt.Errorf("storage data_dir is required for the sqlite driver")
		}
	case "postgres":
		db := config.Storage.Postgres
		if db.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if db.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if db.Username == "" {
			return fmt.Errorf("database username is required")
		}
		if db.Port <= 0 || db.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", db.Port)
		}
	default:
		return fmt.Errorf("unsupported storage driver: %q", config.Storage.Driver)
	}

	if config.Cache.MaxItems <= 0 {
		return fmt.Errorf("cache max_items must be positive, got %d", config.Cache.MaxItems)
	}
	if config.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if config.MCP.ToolRateLimit < 0 {
		return fmt.Errorf("invalid tool rate limit: %v", config.MCP.ToolRateLimit)
	}
	if config.Metrics.Enabled && config.Metrics.File == "" {
		return fmt.Errorf("metrics file is required when metrics are enabled")
	}

	if !validLogLevel(config.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	if f := strings.ToLower(config.Logging.Format); f != "json" && f != "text" {
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}

func validLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
		return true
	}
	return false
}
