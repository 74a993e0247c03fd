// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/AleutianAI/llama-gateway/internal/config"
	"github.com/AleutianAI/llama-gateway/internal/gateway"
	"github.com/AleutianAI/llama-gateway/internal/metadata"
	"github.com/AleutianAI/llama-gateway/internal/metrics"
	"github.com/AleutianAI/llama-gateway/internal/supervisor"
	"github.com/AleutianAI/llama-gateway/internal/tracing"
	"github.com/AleutianAI/llama-gateway/pkg/logging"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{Level: parseLogLevel(logLevel), Service: "llama-gateway"})
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, "llama-gateway")
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	cfg, err := config.Load(configPath, logger.Slog())
	if err != nil {
		return fmt.Errorf("loading config %s: %w", configPath, err)
	}
	defer cfg.Close()

	m := metrics.New()

	sup := supervisor.New(cfg, m, logger.Slog())
	cfg.OnModelsChanged(sup.OnConfigReload)

	cacheDir, err := metadataCacheDir()
	if err != nil {
		return fmt.Errorf("resolving metadata cache dir: %w", err)
	}
	meta, err := metadata.NewProvider(cacheDir, logger.Slog())
	if err != nil {
		return fmt.Errorf("constructing metadata provider: %w", err)
	}

	gw := gateway.New(cfg, sup, meta, m, logger.Slog())

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	go func() {
		if watchErr := cfg.Watch(watchCtx); watchErr != nil && watchCtx.Err() == nil {
			logger.Warn("config watch stopped", "error", watchErr)
		}
	}()

	logger.Info("llama-gateway starting", "config", configPath, "headless", headless)

	runErr := gw.Run(ctx)

	logger.Info("stopping workers")
	if stopErr := sup.StopAll(); stopErr != nil {
		logger.Warn("error stopping workers", "error", stopErr)
	}

	return runErr
}

func parseLogLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func metadataCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "llama-gateway", "metadata"), nil
}
