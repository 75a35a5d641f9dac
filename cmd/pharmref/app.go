package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pharmref-mcp-server/internal/cache"
	"github.com/pharmref-mcp-server/internal/config"
	"github.com/pharmref-mcp-server/internal/database"
	"github.com/pharmref-mcp-server/internal/domain"
	"github.com/pharmref-mcp-server/internal/store"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configFile string
	password   string

	manager *config.Manager
	cfg     *domain.Config
	logger  *logrus.Logger
}

// load reads and validates the configuration.
func (a *app) load() error {
	manager, err := config.NewManager(a.configFile)
	if err != nil {
		return err
	}
	if err := manager.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.manager = manager
	a.cfg = manager.GetConfig()
	a.logger = config.NewLogger(a.cfg.Logging.Level, a.cfg.Logging.Format)
	a.logger.WithField("config_file", manager.ConfigFileUsed()).Debug("Configuration loaded")
	return nil
}

// requireAdmin compares --password with the configured admin password in
// constant time.
func (a *app) requireAdmin() error {
	configured := a.cfg.Admin.Password
	if configured == "" {
		return domain.NewMCPError(domain.ErrAuthentication, "admin password is not configured", "set admin.password or PHARMREF_ADMIN_PASSWORD", "")
	}
	if subtle.ConstantTimeCompare([]byte(a.password), []byte(configured)) != 1 {
		return domain.NewMCPError(domain.ErrAuthentication, "invalid admin password", "", "")
	}
	return nil
}

// openStore opens the configured backend. When a Redis cache is configured
// reads share the tool hosts' lookup cache through a CachedStore.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch a.cfg.Storage.Driver {
	case "postgres":
		db, connErr := a.connectPostgres(ctx)
		if connErr != nil {
			return nil, connErr
		}
		pg, pgErr := store.NewPostgresStore(ctx, db.Pool)
		if pgErr != nil {
			db.Close()
			return nil, pgErr
		}
		st = &closingStore{Store: pg, close: func() error { db.Close(); return nil }}
	default:
		st, err = store.NewSQLiteStore(filepath.Join(a.cfg.Storage.DataDir, "reference.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to open reference store: %w", err)
		}
	}

	if a.cfg.Cache.RedisURL == "" {
		return st, nil
	}
	remote, err := cache.NewRedis(cache.RedisConfig{
		URL:      a.cfg.Cache.RedisURL,
		TTL:      a.cfg.Cache.DefaultTTL,
		PoolSize: a.cfg.Cache.PoolSize,
		// Shares keys with the tool hosts.
		KeyPrefix: "pharmref:cache:",
	}, a.logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	cached := store.NewCachedStore(st, remote, a.logger)
	return &closingStore{Store: cached, close: func() error {
		remote.Close()
		return st.Close()
	}}, nil
}

func (a *app) connectPostgres(ctx context.Context) (*database.DB, error) {
	db, err := database.NewConnection(ctx, database.ConfigFromDomain(*a.manager.GetDatabaseConfig()), a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// withStore opens the store, runs fn and closes it.
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, st store.Store) error) error {
	ctx := cmd.Context()
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close store")
		}
	}()
	return fn(ctx, st)
}

// closingStore replaces Close to release resources the store does not own.
type closingStore struct {
	store.Store
	close func() error
}

func (c *closingStore) Close() error {
	return c.close()
}
