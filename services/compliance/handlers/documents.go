// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianComply/services/compliance/corpus"
	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
	"github.com/AleutianAI/AleutianComply/services/compliance/index"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// addDocumentsRequest carries new regulatory chunks to fold into the index.
type addDocumentsRequest struct {
	Documents []datatypes.CorpusDocument `json:"documents" binding:"required"`
}

// CreateDocuments validates and ingests documents, rebuilding the index.
//
// The whole batch is rejected if any document violates the corpus contract;
// partial ingestion never happens.
func CreateDocuments(r *index.Retriever) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := askTracer.Start(c.Request.Context(), "CreateDocuments")
		defer span.End()

		var request addDocumentsRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind documents request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if len(request.Documents) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "documents must not be empty"})
			return
		}
		span.SetAttributes(attribute.Int("documents.count", len(request.Documents)))

		if err := r.AddDocuments(ctx, request.Documents); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if corpus.IsContractError(err) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			slog.Error("Document ingestion failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		slog.Info("Documents ingested", "count", len(request.Documents), "index_size", r.Count())
		c.JSON(http.StatusCreated, gin.H{
			"ingested":   len(request.Documents),
			"index_size": r.Count(),
		})
	}
}

// IndexStatus reports the loaded index pair's provenance.
func IndexStatus(r *index.Retriever) gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := r.Meta()
		c.JSON(http.StatusOK, gin.H{
			"schema_version":        meta.SchemaVersion,
			"corpus_schema_version": meta.CorpusSchemaVersion,
			"corpus_digest":         meta.CorpusDigest,
			"doc_count":             meta.DocCount,
			"embedding_model":       meta.EmbeddingModel,
			"snapshot":              meta.Snapshot,
			"vectors":               r.Count(),
		})
	}
}
