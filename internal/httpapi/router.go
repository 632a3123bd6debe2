// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/llmhostd/llmhostd/internal/chat"
	"github.com/llmhostd/llmhostd/internal/download"
	"github.com/llmhostd/llmhostd/internal/registry"
	"github.com/llmhostd/llmhostd/pkg/logging"
)

// Version is the control plane's reported service version.
const Version = "0.1.0"

// Deps bundles everything the router needs to wire its handlers.
type Deps struct {
	Registry   *registry.Registry
	Pipeline   *download.Pipeline
	ChatEngine *chat.SessionEngine
	ModelsDir  string
	ConfigFile string
	Logger     *logging.Logger
	MetricsReg prometheus.Gatherer
}

// NewRouter builds the control plane's gin.Engine: model management,
// download pipeline, chat WebSocket upgrade, and the /metrics endpoint.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("llmhostd"))

	mm := NewModelManagement(deps.Registry, deps.ModelsDir, deps.Logger)
	dl := NewDownloads(deps.Pipeline, deps.Logger)

	r.POST("/switch-model", mm.SwitchModel)
	r.GET("/models/available", mm.AvailableModels)

	r.GET("/api/models", dl.List)
	r.GET("/api/models/:id/status", dl.Status)
	r.GET("/api/models/:id/download", dl.Stream)
	r.DELETE("/api/models/:id/download", dl.Cancel)

	r.GET("/health", healthHandler(mm, dl, deps.ConfigFile))

	if deps.ChatEngine != nil {
		r.GET("/ws/chat", chat.Handler(deps.ChatEngine))
	}

	gatherer := deps.MetricsReg
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

// healthHandler merges the model-management and download-pipeline health
// shapes into a single /health response, since both surfaces now live
// behind one router instead of two separate services.
func healthHandler(mm *ModelManagement, dl *Downloads, configFile string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "ok",
			"service":          "llmhostd",
			"version":          Version,
			"models_directory": mm.modelsDir,
			"config_file":      configFile,
			"current_model":    mm.reg.ReadCurrent(),
			"readonly_models":  true,
			"active_downloads": dl.pipeline.ActiveCount(),
		})
	}
}
