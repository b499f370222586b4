// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "fmt"

// RetrievedCandidate is an ephemeral per-query retrieval hit. It is never
// persisted; Row carries the metadata row the hit resolved to.
type RetrievedCandidate struct {
	SectionID string      `json:"section_id"`
	Text      string      `json:"text"`
	Score     float64     `json:"score"`
	Row       MetadataRow `json:"raw_row"`
}

// AskRequest is one compliance question posed to the pipeline.
//
// The pipeline takes no identity or role parameters: it assumes an external
// policy check already authorized the caller.
type AskRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k,omitempty"`
	Strict   bool   `json:"strict,omitempty"`
}

// EnsureDefaults populates zero-valued optional fields in place.
func (r *AskRequest) EnsureDefaults(defaultTopK int) {
	if r.TopK <= 0 {
		r.TopK = defaultTopK
	}
}

// Validate checks the request for structural problems the pipeline cannot
// recover from.
func (r *AskRequest) Validate() error {
	if r.Question == "" {
		return fmt.Errorf("question is required")
	}
	return nil
}

// RetrievalDiagnostics records what retrieval contributed to one pipeline
// call. Warnings hold degraded-path notes (retrieval failure in non-strict
// mode, expansion failure) that did not abort the request.
type RetrievalDiagnostics struct {
	Warnings       []string `json:"warnings,omitempty"`
	Empty          bool     `json:"retrieval_empty"`
	EmptyReason    string   `json:"empty_reason,omitempty"`
	CandidateCount int      `json:"candidate_count"`
	TopScore       float64  `json:"top_score,omitempty"`
}

// Pipeline terminal states.
const (
	StateAnswered = "ANSWERED"
	StateRefused  = "REFUSED"
	StateFailed   = "FAILED"
)

// AskResult is the structured outcome of one pipeline call.
//
// A failed output contract is a normal, reportable outcome: OutputOk is
// false, ContractError describes the failure, and no error is returned by
// the pipeline. Only infrastructure failures (provider down, retriever
// unavailable) surface as Go errors instead of an AskResult.
//
// ContextUsed is the exact context string the prompt embedded; validation
// ran against this same value. Together with Answer, Citations, Provider
// and Model it carries everything a downstream audit component needs to
// build a provenance record.
type AskResult struct {
	RequestID    string               `json:"request_id"`
	State        string               `json:"state"`
	OutputOk     bool                 `json:"output_ok"`
	Answer       *ModelAnswer         `json:"answer,omitempty"`
	ContractErr  *ContractFailure     `json:"contract_error,omitempty"`
	RawModelText string               `json:"raw_model_text,omitempty"`
	ContextUsed  string               `json:"context_used,omitempty"`
	Retrieval    RetrievalDiagnostics `json:"retrieval"`
	Provider     string               `json:"provider,omitempty"`
	Model        string               `json:"model,omitempty"`
}

// ContractFailure is the serializable form of an output-contract error.
type ContractFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Preview string `json:"preview,omitempty"`
}

// ExpansionSnippet is one extra context block contributed by the optional
// knowledge-graph expansion collaborator.
type ExpansionSnippet struct {
	SectionID       string   `json:"section_id"`
	Text            string   `json:"text"`
	Source          string   `json:"source,omitempty"`
	RelatedSections []string `json:"related_sections,omitempty"`
	LabelHints      []string `json:"label_hints,omitempty"`
}
