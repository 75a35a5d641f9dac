// Package mcp exposes the reference engine as MCP tools.
// This file contains the lightweight server that requires no external services.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/pharmref-mcp-server/internal/cache"
	litecfg "github.com/pharmref-mcp-server/internal/config"
	"github.com/pharmref-mcp-server/internal/service"
	"github.com/pharmref-mcp-server/internal/session"
	"github.com/pharmref-mcp-server/internal/store"
)

const (
	serverName    = "pharmref-mcp-server-lite"
	serverVersion = "v0.1.0"

	defaultToolTimeout = 10 * time.Second
)

// LiteServer is a single-user MCP server backed by SQLite.
// Redis is optional and only used when a URL is configured.
type LiteServer struct {
	config       *litecfg.LiteConfig
	mcpServer    *mcp.Server
	store        store.Store
	sessionStore session.Store
	sessions     *session.Manager
	analyzer     *service.Analyzer
	limiter      *rate.Limiter
	toolTimeout  time.Duration
	redis        *redis.Client
	closers      []func() error
	logger       *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithStore sets a custom reference store. The server still seeds it.
func WithStore(s store.Store) LiteServerOption {
	return func(srv *LiteServer) error {
		srv.store = s
		return nil
	}
}

// WithSessionStore sets a custom session store.
func WithSessionStore(s session.Store) LiteServerOption {
	return func(srv *LiteServer) error {
		srv.sessionStore = s
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(srv *LiteServer) error {
		srv.logger = logger
		return nil
	}
}

// WithToolTimeout bounds each tool call.
func WithToolTimeout(d time.Duration) LiteServerOption {
	return func(srv *LiteServer) error {
		if d <= 0 {
			return fmt.Errorf("tool timeout must be positive, got %s", d)
		}
		srv.toolTimeout = d
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(ctx context.Context, cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config:      cfg,
		logger:      litecfg.NewLogger(cfg.LogLevel, cfg.LogFormat),
		toolTimeout: defaultToolTimeout,
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		server.redis = redis.NewClient(redisOpts)
		server.closers = append(server.closers, server.redis.Close)
	}

	if server.store == nil {
		sqliteStore, err := store.NewSQLiteStore(cfg.DatabasePath())
		if err != nil {
			return nil, fmt.Errorf("failed to create reference store: %w", err)
		}
		server.store = sqliteStore
	}
	server.closers = append(server.closers, server.store.Close)

	// A failed seed leaves the store as it is; the tools still serve
	// whatever it holds.
	seeded, err := store.SeedIfEmpty(ctx, server.store, server.logger)
	if err != nil {
		server.logger.WithError(err).Warn("Could not seed reference store, continuing with existing data")
	} else if seeded.Drugs > 0 || seeded.Rules > 0 {
		server.logger.WithFields(logrus.Fields{
			"drugs": seeded.Drugs,
			"rules": seeded.Rules,
		}).Info("Seeded reference store with bundled dataset")
	}

	server.store = store.NewCachedStore(server.store, server.lookupCache(), server.logger)

	if server.sessionStore == nil {
		if server.redis != nil {
			server.sessionStore = session.NewRedisStore(server.redis, cfg.SessionTTL, server.logger)
		} else {
			server.sessionStore = session.NewMemoryStore(cfg.SessionTTL)
		}
	}
	server.sessions = session.NewManager(server.sessionStore, server.logger)
	server.analyzer = service.NewAnalyzer(server.logger)

	if cfg.ToolRate > 0 {
		burst := int(cfg.ToolRate * 2)
		if burst < 1 {
			burst = 1
		}
		server.limiter = rate.NewLimiter(rate.Limit(cfg.ToolRate), burst)
	}

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	server.registerTools()

	server.logger.WithFields(logrus.Fields{
		"data_dir": cfg.DataDir,
		"redis":    server.redis != nil,
	}).Info("Lite server initialized successfully")
	return server, nil
}

// lookupCache layers the in-process LRU over Redis when Redis is configured.
func (s *LiteServer) lookupCache() cache.Cache {
	memory := cache.NewLRU(s.config.CacheMaxItems, s.config.CacheTTL)
	if s.redis == nil {
		return memory
	}
	remote := cache.NewRedisWithClient(s.redis, "pharmref:cache:", s.config.CacheTTL, s.logger)
	return cache.NewTiered(memory, remote)
}

// Start runs the server over stdio until ctx is cancelled or the client
// disconnects.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.Info("Starting PharmRef MCP Server (Lite)...")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close releases the store and the Redis client.
func (s *LiteServer) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.WithError(err).Error("Failed to close resource")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.closers = nil
	return firstErr
}

// Store returns the cached reference store.
func (s *LiteServer) Store() store.Store {
	return s.store
}
