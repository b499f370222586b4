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
	"os"
	"path/filepath"

	"github.com/AleutianAI/AleutianComply/services/compliance/config"
	"github.com/AleutianAI/AleutianComply/services/compliance/corpus"
	"github.com/AleutianAI/AleutianComply/services/compliance/index"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
)

// buildCorpusRequest names the snapshot to turn into the corpus file.
type buildCorpusRequest struct {
	SnapshotPath string `json:"snapshot_path" binding:"required"`
	SourceRef    string `json:"source_ref,omitempty"`
	MaxChars     int    `json:"max_chars,omitempty"`
}

// BuildCorpus rebuilds the corpus file from a snapshot on the service host.
//
// A contract violation anywhere in the snapshot fails the whole build and
// leaves the existing corpus file untouched.
func BuildCorpus() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := askTracer.Start(c.Request.Context(), "BuildCorpus")
		defer span.End()

		var request buildCorpusRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		cfg := config.Global
		maxChars := request.MaxChars
		if maxChars <= 0 {
			maxChars = cfg.Data.MaxChars
		}

		docs, err := corpus.Build(request.SnapshotPath, request.SourceRef, maxChars)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if corpus.IsContractError(err) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		out := cfg.CorpusPath()
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := corpus.WriteCorpus(docs, out); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		slog.Info("Corpus built", "path", out, "doc_count", len(docs))
		c.JSON(http.StatusOK, gin.H{
			"path":      out,
			"doc_count": len(docs),
			"digest":    corpus.Digest(docs),
		})
	}
}

// BuildIndexFromCorpus embeds the current corpus file and writes the index
// pair. The retriever reloads immediately; the file watcher would catch the
// replacement anyway, but an explicit reload makes the response truthful.
func BuildIndexFromCorpus(model index.EmbeddingModel, r *index.Retriever) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := askTracer.Start(c.Request.Context(), "BuildIndexFromCorpus")
		defer span.End()

		cfg := config.Global
		docs, err := corpus.ReadCorpus(cfg.CorpusPath())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if corpus.IsContractError(err) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := index.BuildIndex(ctx, docs, model, cfg.IndexPath(), nil); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := r.Reload(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		slog.Info("Index rebuilt", "path", cfg.IndexPath(), "doc_count", len(docs))
		c.JSON(http.StatusOK, gin.H{
			"path":      cfg.IndexPath(),
			"doc_count": len(docs),
		})
	}
}
