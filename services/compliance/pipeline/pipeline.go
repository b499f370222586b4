// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates one grounded compliance question:
// retrieve, thin-check, expand, prompt, generate, validate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianComply/services/compliance/contract"
	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
	"github.com/AleutianAI/AleutianComply/services/compliance/observability"
	"github.com/AleutianAI/AleutianComply/services/llm"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("comply.pipeline")

// thinRefusalText is the synthesized answer for requests short-circuited
// by the thin-retrieval check. It must satisfy the refusal-shape rules of
// the output contract.
const thinRefusalText = "Insufficient evidence was retrieved from the regulations to answer " +
	"this question. Provide a more specific question, or the exact EAR part or " +
	"section involved."

// ============================================================================
// Interfaces
// ============================================================================

// Retriever is the slice of the index retriever the pipeline needs.
type Retriever interface {
	Query(ctx context.Context, question string, topK int) ([]datatypes.RetrievedCandidate, error)
}

// ============================================================================
// Structs
// ============================================================================

// Options configures a Pipeline.
type Options struct {
	// AllowedLabels is the label enum the prompt advertises and the
	// validator enforces. The refusal label is always ensured present.
	AllowedLabels []string

	// DefaultTopK is used when a request does not specify top_k.
	DefaultTopK int

	// ThinCheckEnabled turns on the thin-retrieval short circuit.
	ThinCheckEnabled bool

	// ThinScoreFloor is the minimum top-candidate score; anything below
	// refuses without calling the model. Heuristic, tune per embedding
	// model.
	ThinScoreFloor float64

	// GenerateTimeout bounds the whole GENERATE step.
	GenerateTimeout time.Duration

	// Params are passed to every generation call.
	Params llm.GenerationParams
}

// Pipeline executes ask requests. Stateless between requests; safe for
// concurrent use when its collaborators are.
type Pipeline struct {
	retriever Retriever
	client    llm.LLMClient
	expander  Expander
	opts      Options
}

// ============================================================================
// Constructor Functions
// ============================================================================

// NewPipeline wires a pipeline from its collaborators.
//
// # Inputs
//
//   - retriever: Vector retrieval; required.
//   - client: Generation backend; required.
//   - expander: Optional context enrichment; nil for none.
//   - opts: Tunables; zero values get defaults.
func NewPipeline(retriever Retriever, client llm.LLMClient, expander Expander, opts Options) (*Pipeline, error) {
	if retriever == nil {
		return nil, fmt.Errorf("pipeline: retriever is required")
	}
	if client == nil {
		return nil, fmt.Errorf("pipeline: generation client is required")
	}
	if expander == nil {
		expander = NoopExpander{}
	}
	if len(opts.AllowedLabels) == 0 {
		opts.AllowedLabels = []string{"permitted", "prohibited", "license_required", datatypes.LabelUnanswerable}
	}
	hasRefusal := false
	for _, l := range opts.AllowedLabels {
		if l == datatypes.LabelUnanswerable {
			hasRefusal = true
			break
		}
	}
	if !hasRefusal {
		opts.AllowedLabels = append(opts.AllowedLabels, datatypes.LabelUnanswerable)
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.ThinScoreFloor <= 0 {
		opts.ThinScoreFloor = 0.5
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 120 * time.Second
	}
	return &Pipeline{
		retriever: retriever,
		client:    client,
		expander:  expander,
		opts:      opts,
	}, nil
}

// ============================================================================
// Methods
// ============================================================================

// Ask runs one question through the full pipeline.
//
// # Description
//
// RETRIEVE -> THIN_CHECK -> EXPAND -> PROMPT -> GENERATE -> VALIDATE.
// A failed output contract is a normal outcome: the result carries
// OutputOk=false and the contract error, and the returned error is nil.
// Only infrastructure failures (retrieval in strict mode, provider errors)
// return a Go error instead of a result.
//
// # Outputs
//
//   - *datatypes.AskResult: Terminal state ANSWERED, REFUSED, or FAILED.
//   - error: Infrastructure failure; no result was produced.
func (p *Pipeline) Ask(ctx context.Context, req datatypes.AskRequest) (*datatypes.AskResult, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Ask")
	defer span.End()

	req.EnsureDefaults(p.opts.DefaultTopK)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result := &datatypes.AskResult{
		RequestID: uuid.NewString(),
		Provider:  p.client.Provider(),
		Model:     p.client.Model(),
	}
	span.SetAttributes(
		attribute.String("ask.request_id", result.RequestID),
		attribute.Int("ask.top_k", req.TopK),
	)

	// RETRIEVE
	retrieveStart := time.Now()
	candidates, err := p.retriever.Query(ctx, req.Question, req.TopK)
	observability.RetrievalSeconds.Observe(time.Since(retrieveStart).Seconds())
	if err != nil {
		if req.Strict {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("retrieval failed: %w", err)
		}
		result.Retrieval.Warnings = append(result.Retrieval.Warnings,
			fmt.Sprintf("retrieval failed: %v", err))
		candidates = nil
	}
	result.Retrieval.CandidateCount = len(candidates)
	if len(candidates) == 0 {
		result.Retrieval.Empty = true
		if result.Retrieval.EmptyReason == "" {
			result.Retrieval.EmptyReason = "no candidates returned"
		}
	} else {
		result.Retrieval.TopScore = candidates[0].Score
	}

	// THIN_CHECK: weak evidence never reaches the model.
	if p.opts.ThinCheckEnabled && (len(candidates) == 0 || candidates[0].Score < p.opts.ThinScoreFloor) {
		observability.ThinRefusals.Inc()
		observability.AskRequests.WithLabelValues("refused").Inc()
		result.State = datatypes.StateRefused
		result.OutputOk = true
		result.Answer = &datatypes.ModelAnswer{
			Label:        datatypes.LabelUnanswerable,
			AnswerText:   thinRefusalText,
			Citations:    []datatypes.Citation{},
			EvidenceOkay: datatypes.EvidenceCheck{Ok: true, Reasons: []string{"retrieval below score floor"}},
			Assumptions:  []string{},
		}
		slog.Info("Thin retrieval, refusing without generation",
			"request_id", result.RequestID,
			"top_score", result.Retrieval.TopScore,
			"floor", p.opts.ThinScoreFloor,
		)
		return result, nil
	}

	// EXPAND (best-effort)
	var snippets []datatypes.ExpansionSnippet
	if len(candidates) > 0 {
		ids := make([]string, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.SectionID)
		}
		snippets, err = p.expander.Expand(ctx, ids)
		if err != nil {
			result.Retrieval.Warnings = append(result.Retrieval.Warnings,
				fmt.Sprintf("expansion failed: %v", err))
			snippets = nil
		}
	}

	// PROMPT. The context string is built exactly once and reused below
	// for validation.
	contextUsed := BuildContext(candidates, snippets)
	result.ContextUsed = contextUsed
	messages := BuildMessages(req.Question, contextUsed, p.opts.AllowedLabels)

	// GENERATE
	genCtx, cancel := context.WithTimeout(ctx, p.opts.GenerateTimeout)
	defer cancel()
	genStart := time.Now()
	rawText, err := p.client.Generate(genCtx, messages, p.opts.Params)
	observability.GenerationSeconds.Observe(time.Since(genStart).Seconds())
	if err != nil {
		observability.AskRequests.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	result.RawModelText = rawText

	// VALIDATE against the same context the prompt used.
	answer, err := contract.Validate(rawText, p.opts.AllowedLabels, contextUsed)
	if err != nil {
		var ve *contract.ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		observability.ContractFailures.WithLabelValues(ve.Code).Inc()
		observability.AskRequests.WithLabelValues("failed").Inc()
		result.State = datatypes.StateFailed
		result.OutputOk = false
		result.ContractErr = &datatypes.ContractFailure{
			Code:    ve.Code,
			Message: ve.Message,
			Preview: ve.Preview,
		}
		slog.Warn("Model answer rejected by output contract",
			"request_id", result.RequestID,
			"code", ve.Code,
		)
		return result, nil
	}

	result.Answer = answer
	result.OutputOk = true
	if answer.IsRefusal() {
		result.State = datatypes.StateRefused
		observability.AskRequests.WithLabelValues("refused").Inc()
	} else {
		result.State = datatypes.StateAnswered
		observability.AskRequests.WithLabelValues("answered").Inc()
	}

	slog.Info("Ask completed",
		"request_id", result.RequestID,
		"state", result.State,
		"label", answer.Label,
		"citations", len(answer.Citations),
	)
	return result, nil
}
