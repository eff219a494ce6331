// Vendord - License, credit and provider gateway service
package main

import (
	"context"
	"os"

	"github.com/ipvlabs/vendord/internal/config"
	"github.com/ipvlabs/vendord/internal/logging"
	"github.com/ipvlabs/vendord/internal/server"
	"github.com/ipvlabs/vendord/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting vendord",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"provider_keys", len(cfg.TranscriptionKeys),
		"rotation_mode", cfg.RotationMode,
	)

	ctx := context.Background()

	// Tracing is optional; a missing endpoint leaves the no-op provider in place
	if cfg.OTLPEndpoint != "" {
		shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
		if err != nil {
			logger.Error("failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("trace shutdown error", "error", err)
			}
		}()
	}

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
