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
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
	"github.com/AleutianAI/AleutianComply/services/compliance/index"
	"github.com/AleutianAI/AleutianComply/services/compliance/pipeline"
	"github.com/AleutianAI/AleutianComply/services/llm"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var askTracer = otel.Tracer("comply.handlers")

// HandleAsk answers one compliance question.
//
// Contract failures come back as 200 with output_ok=false; only
// infrastructure problems map to error statuses.
func HandleAsk(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := askTracer.Start(c.Request.Context(), "HandleAsk")
		defer span.End()

		var request datatypes.AskRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind ask request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		span.SetAttributes(
			attribute.Int("ask.top_k", request.TopK),
			attribute.Bool("ask.strict", request.Strict),
		)

		result, err := p.Ask(ctx, request)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Ask pipeline failed", "error", err)

			var budgetErr *llm.BudgetExceededError
			switch {
			case index.IsIndexMissing(err), index.IsPairingError(err):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			case errors.As(err, &budgetErr):
				c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
