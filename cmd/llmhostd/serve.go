// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/llmhostd/llmhostd/internal/catalog"
	"github.com/llmhostd/llmhostd/internal/chat"
	"github.com/llmhostd/llmhostd/internal/config"
	"github.com/llmhostd/llmhostd/internal/download"
	"github.com/llmhostd/llmhostd/internal/httpapi"
	"github.com/llmhostd/llmhostd/internal/inference"
	"github.com/llmhostd/llmhostd/internal/observability"
	"github.com/llmhostd/llmhostd/internal/registry"
	"github.com/llmhostd/llmhostd/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control plane HTTP and WebSocket server",
	RunE:  runServeCommand,
}

func levelFromString(s string) logging.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func runServeCommand(cmd *cobra.Command, args []string) error {
	cfg := config.Global

	logger := logging.New(logging.Config{
		Level:   levelFromString(cfg.LogLevel),
		LogDir:  config.ExpandPath(cfg.LogDir),
		Service: "llmhostd",
	})
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTELEndpoint != "" {
		shutdown, err := observability.InitTracer(ctx, cfg.OTELEndpoint, logger)
		if err != nil {
			logger.Warn("tracing disabled: failed to initialize otlp exporter", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	cat, err := catalog.Load(config.ExpandPath(cfg.CatalogPath))
	if err != nil {
		return fmt.Errorf("load model catalog: %w", err)
	}

	reg := registry.New(config.ExpandPath(cfg.RegistryPath), logger)
	if err := reg.WatchExternalChanges(ctx.Done()); err != nil {
		logger.Warn("external registry file watch disabled", "error", err)
	}

	metricsReg := prometheus.NewRegistry()
	downloadMetrics := observability.NewDownloadMetrics(metricsReg)
	chatMetrics := observability.NewChatMetrics(metricsReg)

	pipeline := download.New(cat, download.Config{
		ModelsDir:              config.ExpandPath(cfg.ModelsDir),
		TempDir:                config.ExpandPath(cfg.ModelsDir),
		MaxRetries:             cfg.Download.MaxRetriesPerMethod,
		RetryBackoff:           cfg.Download.RetryBackoff,
		AllowedHosts:           cfg.Download.AllowedHosts,
		AllowedBuckets:         cfg.Download.AllowedGCSBuckets,
		MaxConcurrentDownloads: cfg.Download.MaxConcurrentDownloads,
		Metrics:                downloadMetrics,
		Logger:                 logger,
	})

	requestTimeout := cfg.Inference.RequestTimeout
	engineFactory := func(modelName string) inference.Engine {
		model := modelName
		if model == "" {
			model = cfg.Inference.Model
		}
		client := inference.NewOpenAICompatClient(cfg.Inference.BaseURL, model, "")
		return inference.TimeoutEngine{Engine: client, Timeout: requestTimeout}
	}

	chatEngine := chat.New(chat.Config{
		EngineFactory:    engineFactory,
		Registry:         reg,
		SystemPreamble:   cfg.Chat.SystemPreamble,
		MaxActivePrompts: cfg.Chat.MaxActivePrompts,
		Metrics:          chatMetrics,
		Logger:           logger,
	})
	chatEngine.Watch(ctx.Done())

	configPath, err := config.Path()
	if err != nil {
		configPath = ""
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Registry:   reg,
		Pipeline:   pipeline,
		ChatEngine: chatEngine,
		ModelsDir:  config.ExpandPath(cfg.ModelsDir),
		ConfigFile: configPath,
		Logger:     logger,
		MetricsReg: metricsReg,
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control plane listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
