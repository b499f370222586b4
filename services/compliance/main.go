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
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/AleutianAI/AleutianComply/pkg/logging"
	"github.com/AleutianAI/AleutianComply/services/compliance/config"
	"github.com/AleutianAI/AleutianComply/services/compliance/index"
	"github.com/AleutianAI/AleutianComply/services/compliance/pipeline"
	"github.com/AleutianAI/AleutianComply/services/compliance/routes"
	"github.com/AleutianAI/AleutianComply/services/llm"
	"github.com/gin-gonic/gin"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

func initTracer() (func(context.Context), error) {
	// The service runs standalone, so there is no collector to ship to;
	// COMPLY_TRACE_STDOUT=true dumps spans to stdout instead.
	if os.Getenv("COMPLY_TRACE_STDOUT") != "true" {
		return func(context.Context) {}, nil
	}
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String("compliance-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown the trace exporter", "error", err)
		}
	}, nil
}

func main() {
	logger, logErr := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("COMPLY_LOG_LEVEL")),
		LogDir:  os.Getenv("COMPLY_LOG_DIR"),
		Service: "compliance",
	})
	logger.SetAsDefault()
	defer logger.Close()
	if logErr != nil {
		slog.Warn("File logging disabled", "error", logErr)
	}

	if err := config.Load(); err != nil {
		log.Fatalf("failed to load the config: %v", err)
	}
	cfg := config.Global

	port := os.Getenv("COMPLY_PORT")
	if port == "" {
		port = cfg.Server.Port
	}

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the tracer: %v", err)
	}
	defer cleanup(context.Background())

	embedder, err := index.NewEmbeddingModel(cfg.Embedding.Backend, cfg.Embedding.Model)
	if err != nil {
		log.Fatalf("failed to create the embedding model: %v", err)
	}

	retriever, err := index.NewRetriever(embedder, cfg.IndexPath())
	if err != nil {
		// A missing or mismatched index pair is an operator problem; the
		// error text already says which command to run.
		log.Fatalf("failed to load the index: %v", err)
	}
	slog.Info("Index loaded",
		"path", cfg.IndexPath(),
		"doc_count", retriever.Count(),
		"embedding_model", retriever.Meta().EmbeddingModel,
	)

	// Hot-reload the index pair when a build replaces it on disk.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go func() {
		if err := index.WatchIndex(watchCtx, retriever); err != nil {
			slog.Warn("Index watcher stopped", "error", err)
		}
	}()

	client, err := buildLLMClient(cfg)
	if err != nil {
		log.Fatalf("failed to create the LLM client: %v", err)
	}
	slog.Info("Generation backend ready", "provider", client.Provider(), "model", client.Model())

	var expander pipeline.Expander
	if os.Getenv("WEAVIATE_HOST") != "" {
		expander, err = pipeline.NewWeaviateExpander()
		if err != nil {
			slog.Warn("Knowledge-graph expansion disabled", "error", err)
			expander = nil
		}
	}

	p, err := pipeline.NewPipeline(retriever, client, expander, pipeline.Options{
		AllowedLabels:    cfg.Pipeline.AllowedLabels,
		DefaultTopK:      cfg.Pipeline.TopK,
		ThinCheckEnabled: cfg.Pipeline.ThinCheckEnabled,
		ThinScoreFloor:   cfg.Pipeline.ThinScoreFloor,
		GenerateTimeout:  time.Duration(cfg.Pipeline.GenerateTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to build the pipeline: %v", err)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("compliance-service"))
	routes.SetupRoutes(router, p, retriever, embedder)

	slog.Info("Compliance service listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// buildLLMClient applies the config's provider tunables on top of the
// environment when the raw HTTP backend is selected; the other backends
// configure themselves from the environment alone.
func buildLLMClient(cfg config.ComplyConfig) (llm.LLMClient, error) {
	if os.Getenv("GENERATION_BACKEND") != "http" {
		return llm.NewLLMClient()
	}
	opts, err := llm.EnvHTTPOptions()
	if err != nil {
		return nil, err
	}
	if opts.MinInterval <= 0 && cfg.Provider.MinIntervalSeconds > 0 {
		opts.MinInterval = time.Duration(cfg.Provider.MinIntervalSeconds) * time.Second
	}
	if opts.MaxCalls <= 0 && cfg.Provider.MaxCallsPerRun > 0 {
		opts.MaxCalls = cfg.Provider.MaxCallsPerRun
	}
	if len(cfg.Provider.QuotaMarkers) > 0 {
		policy := llm.DefaultRetryPolicy()
		policy.QuotaMarkers = cfg.Provider.QuotaMarkers
		opts.Policy = &policy
	}
	return llm.NewHTTPClientWithOptions(opts)
}
