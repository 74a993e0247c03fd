// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway implements the two HTTP front ends (spec.md §5): an
// OpenAI-compatible listener on 127.0.0.1:1234 and an Ollama-compatible
// listener on 127.0.0.1:11434. Both translate client requests into
// upstream calls against whichever llama.cpp-family worker the
// Supervisor has ensured running, and translate the response back,
// applying FormatBridge when the two dialects disagree.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/llama-gateway/internal/config"
	"github.com/AleutianAI/llama-gateway/internal/metadata"
	"github.com/AleutianAI/llama-gateway/internal/metrics"
	"github.com/AleutianAI/llama-gateway/internal/supervisor"
	"github.com/gin-gonic/gin"
)

// openAIAddr and ollamaAddr are the fixed bind addresses spec.md §5.1
// requires; both are loopback-only, matching where workers themselves
// bind.
const (
	openAIAddr = "127.0.0.1:1234"
	ollamaAddr = "127.0.0.1:11434"

	// ensureDeadline bounds how long a request waits for a cold worker
	// to become ready before the handler gives up and reports a
	// StartupFailed error.
	ensureDeadline = 240 * time.Second

	// shutdownGrace bounds how long Run waits for in-flight requests to
	// drain once its context is cancelled.
	shutdownGrace = 10 * time.Second
)

// Gateway owns both HTTP listeners and the dependencies their handlers
// share.
type Gateway struct {
	cfg     *config.View
	sup     *supervisor.Supervisor
	meta    *metadata.Provider
	metrics *metrics.Metrics
	logger  *slog.Logger
	client  *http.Client

	openaiSrv *http.Server
	ollamaSrv *http.Server
}

// New builds a Gateway. It does not bind any socket; call Run to start
// serving. m may be nil, in which case request metrics are not recorded.
func New(cfg *config.View, sup *supervisor.Supervisor, meta *metadata.Provider, m *metrics.Metrics, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:     cfg,
		sup:     sup,
		meta:    meta,
		metrics: m,
		logger:  logger,
		client:  newUpstreamClient(),
	}
}

// Run starts whichever listeners the current configuration enables and
// blocks until ctx is cancelled or a listener fails to start. On return
// it shuts down both servers, waiting up to shutdownGrace for in-flight
// requests to finish.
func (g *Gateway) Run(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	snap := g.cfg.Current()

	errCh := make(chan error, 2)

	if snap.LMStudioEnabled {
		g.openaiSrv = &http.Server{Addr: openAIAddr, Handler: g.openAIRouter(snap)}
		go func() {
			g.logger.Info("gateway listener starting", "dialect", "openai", "addr", openAIAddr)
			if err := g.openaiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	if snap.OllamaEnabled {
		g.ollamaSrv = &http.Server{Addr: ollamaAddr, Handler: g.ollamaRouter(snap)}
		go func() {
			g.logger.Info("gateway listener starting", "dialect", "ollama", "addr", ollamaAddr)
			if err := g.ollamaSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if g.openaiSrv != nil {
		_ = g.openaiSrv.Shutdown(shutdownCtx)
	}
	if g.ollamaSrv != nil {
		_ = g.ollamaSrv.Shutdown(shutdownCtx)
	}

	return runErr
}
