package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, ".pharmref", filepath.Base(cfg.DataDir))
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 20.0, cfg.ToolRate)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Empty(t, cfg.AdminPassword)
	assert.Empty(t, cfg.MetricsFile)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("PHARMREF_DATA_DIR", "/tmp/test-pharmref")
	os.Setenv("PHARMREF_CACHE_MAX_ITEMS", "500")
	os.Setenv("PHARMREF_CACHE_TTL", "10m")
	os.Setenv("PHARMREF_REDIS_URL", "redis://cache:6379/2")
	os.Setenv("PHARMREF_SESSION_TTL", "30m")
	os.Setenv("PHARMREF_TOOL_RATE", "0")
	os.Setenv("PHARMREF_ADMIN_PASSWORD", "s3cret")
	os.Setenv("PHARMREF_METRICS_FILE", "/var/lib/node_exporter/pharmref.prom")
	os.Setenv("PHARMREF_LOG_LEVEL", "debug")
	os.Setenv("PHARMREF_LOG_FORMAT", "text")

	defer clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-pharmref", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 0.0, cfg.ToolRate)
	assert.Equal(t, "s3cret", cfg.AdminPassword)
	assert.Equal(t, "/var/lib/node_exporter/pharmref.prom", cfg.MetricsFile)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadLiteConfig_InvalidValuesKeepDefaults(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("PHARMREF_CACHE_MAX_ITEMS", "-5")
	os.Setenv("PHARMREF_CACHE_TTL", "soon")
	os.Setenv("PHARMREF_TOOL_RATE", "-1")

	defer clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 20.0, cfg.ToolRate)
}

func TestLiteConfig_DatabasePath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.pharmref"}

	path := cfg.DatabasePath()

	assert.Equal(t, "/home/user/.pharmref/reference.db", path)
}

func TestLiteConfig_ExportDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.pharmref"}

	path := cfg.ExportDir()

	assert.Equal(t, "/home/user/.pharmref/exports", path)
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "pharmref")}

	err = cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnvVars(t)
	defer clearEnvVars(t)

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PHARMREF_LOG_LEVEL=warn\nPHARMREF_CACHE_MAX_ITEMS=42\n"), 0644))

	// An explicitly set variable is not overridden by the file.
	os.Setenv("PHARMREF_CACHE_MAX_ITEMS", "7")

	require.NoError(t, LoadDotEnv(envFile, filepath.Join(dir, "missing.env")))
	cfg := LoadLiteConfig()

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7, cfg.CacheMaxItems)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("debug", "text")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stderr, logger.Out)

	fallback := NewLogger("loud", "json")
	assert.Equal(t, logrus.InfoLevel, fallback.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, fallback.Formatter)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"PHARMREF_DATA_DIR",
		"PHARMREF_CACHE_MAX_ITEMS",
		"PHARMREF_CACHE_TTL",
		"PHARMREF_REDIS_URL",
		"PHARMREF_SESSION_TTL",
		"PHARMREF_TOOL_RATE",
		"PHARMREF_ADMIN_PASSWORD",
		"PHARMREF_METRICS_FILE",
		"PHARMREF_LOG_LEVEL",
		"PHARMREF_LOG_FORMAT",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
