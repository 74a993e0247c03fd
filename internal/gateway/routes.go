// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"github.com/AleutianAI/llama-gateway/internal/config"
	"github.com/gin-gonic/gin"
)

// openAIRouter builds the route table for the OpenAI-compatible
// listener (spec.md §6): /v1/* plus the /api/v0/* LM Studio mirror,
// gated by the configured bearer token when one is set.
func (g *Gateway) openAIRouter(snap *config.Snapshot) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(g.recordRequestMetrics("openai"))
	router.Use(requireBearerToken(snap.LMStudioAPIKey))

	v1 := router.Group("/v1")
	{
		v1.GET("/models", g.handleListModelsOpenAI)
		v1.POST("/chat/completions", g.handleOpenAIChat)
		v1.POST("/completions", g.handleOpenAICompletions)
		v1.POST("/embeddings", g.handleOpenAIEmbeddings)
	}

	v0 := router.Group("/api/v0")
	{
		v0.GET("/models", g.handleListModelsLMStudio)
		v0.GET("/models/:id", g.handleGetModelLMStudio)
		v0.POST("/chat/completions", g.handleOpenAIChat)
		v0.POST("/completions", g.handleOpenAICompletions)
		v0.POST("/embeddings", g.handleOpenAIEmbeddings)
	}

	return router
}

// ollamaRouter builds the route table for the Ollama-compatible
// listener. Ollama's wire protocol carries no bearer-token convention,
// so no auth middleware applies here regardless of configuration.
func (g *Gateway) ollamaRouter(snap *config.Snapshot) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(g.recordRequestMetrics("ollama"))

	api := router.Group("/api")
	{
		api.POST("/generate", g.handleOllamaGenerate)
		api.POST("/chat", g.handleOllamaChat)
		api.POST("/embeddings", g.handleOllamaEmbeddings)
		api.GET("/tags", g.handleOllamaTags)
		api.POST("/show", g.handleOllamaShow)
	}

	if g.metrics != nil {
		router.GET("/metrics", gin.WrapH(g.metrics.Handler()))
	}

	return router
}
