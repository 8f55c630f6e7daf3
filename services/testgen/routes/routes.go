// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/testforge/services/llm"
	"github.com/AleutianAI/testforge/services/testgen/handlers"
	"github.com/AleutianAI/testforge/services/testgen/registry"
)

// SetupRoutes registers all testforge routes with the router.
//
// Description:
//
//	Registers the health and metrics endpoints plus the /v1 API group.
//
// Inputs:
//
//	router - Gin engine with middleware already applied
//	reg - Model registry
//	clients - Provider adapter set
//	timeout - Per-request generation budget (zero for the default)
//
// Endpoints:
//
//	GET  /health - Liveness probe
//	GET  /metrics - Prometheus metrics
//	GET  /v1/models - Model catalog
//	POST /v1/generate/stream - Streaming test generation (NDJSON)
func SetupRoutes(router *gin.Engine, reg *registry.Registry, clients llm.ClientSet, timeout time.Duration) {
	router.GET("/health", handlers.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	generate := handlers.NewGenerateHandler(reg, clients, timeout)
	models := handlers.NewModelsHandler(reg)

	v1 := router.Group("/v1")
	{
		v1.GET("/models", models.HandleListModels)
		v1.POST("/generate/stream", generate.HandleGenerateStream)
	}
}
