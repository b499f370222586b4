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
	"github.com/AleutianAI/AleutianComply/services/compliance/handlers"
	"github.com/AleutianAI/AleutianComply/services/compliance/index"
	"github.com/AleutianAI/AleutianComply/services/compliance/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *gin.Engine, p *pipeline.Pipeline, retriever *index.Retriever,
	embedder index.EmbeddingModel) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/ask", handlers.HandleAsk(p))
		v1.POST("/documents", handlers.CreateDocuments(retriever))
		v1.POST("/corpus/build", handlers.BuildCorpus())
		v1.POST("/index/build", handlers.BuildIndexFromCorpus(embedder, retriever))
		v1.GET("/index/status", handlers.IndexStatus(retriever))
	}
}
