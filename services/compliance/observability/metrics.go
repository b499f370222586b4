// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability holds the Prometheus metrics for the compliance
// service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AskRequests counts ask pipeline outcomes by terminal state.
	AskRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comply",
		Name:      "ask_requests_total",
		Help:      "Ask pipeline requests by terminal state (answered, refused, failed).",
	}, []string{"state"})

	// ThinRefusals counts requests short-circuited by the thin-retrieval
	// check before any generation call.
	ThinRefusals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "comply",
		Name:      "thin_refusals_total",
		Help:      "Requests refused because the top retrieval score was below the floor.",
	})

	// ContractFailures counts answer contract rejections by code.
	ContractFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comply",
		Name:      "contract_failures_total",
		Help:      "Model answers rejected by the output contract, by failure code.",
	}, []string{"code"})

	// RetrievalSeconds observes end-to-end retrieval latency.
	RetrievalSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "comply",
		Name:      "retrieval_seconds",
		Help:      "Latency of the retrieve step.",
		Buckets:   prometheus.DefBuckets,
	})

	// GenerationSeconds observes generation call latency, including
	// throttle waits and retries.
	GenerationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "comply",
		Name:      "generation_seconds",
		Help:      "Latency of the generate step.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)
