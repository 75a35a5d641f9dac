// Package main provides the local stdio entry point for the PharmRef MCP server.
// It needs no external services: reference data lives in SQLite under the
// data directory and sessions stay in memory unless Redis is configured.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pharmref-mcp-server/internal/config"
	"github.com/pharmref-mcp-server/internal/mcp"
	"github.com/pharmref-mcp-server/internal/metrics"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg := config.LoadLiteConfig()
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("data_dir", cfg.DataDir).Info("Starting PharmRef MCP Server (Lite)")

	server, err := mcp.NewLiteServer(ctx, cfg, mcp.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}
	defer server.Close()

	if cfg.MetricsFile != "" {
		exporter := metrics.NewExporter(cfg.MetricsFile, 15*time.Second, logger)
		go exporter.Run(ctx)
	}

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("MCP server failed")
		server.Close()
		os.Exit(1)
	}

	logger.Info("PharmRef MCP Server (Lite) stopped")
}
