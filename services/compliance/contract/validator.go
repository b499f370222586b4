// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contract validates raw model output against the structured
// answer contract: strict JSON shape, label enums, citation grounding
// against the retrieval context, and refusal shape.
package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
)

// Failure codes for answer contract violations. Each code names one
// distinct rejection reason; the pipeline maps any of them to an
// output_ok=false result rather than an error.
const (
	CodeInvalidJSON           = "invalid_json"
	CodeWrongType             = "wrong_type"
	CodeMissingKey            = "missing_key"
	CodeExtraKey              = "extra_key"
	CodeInvalidEnum           = "invalid_enum"
	CodeInvalidValue          = "invalid_value"
	CodeUngroundedCitation    = "ungrounded_citation"
	CodeAssumptionUnsupported = "assumption_unsupported"
	CodeEvidenceNotOk         = "evidence_not_ok"
)

// maxPreview bounds the raw-text preview attached to failures so a
// multi-megabyte model payload never lands in a log line.
const maxPreview = 400

// Refusal-shape vocabularies. An unanswerable answer has to actually read
// like a refusal with guidance, not a bare "no".
var (
	refusalTokens  = []string{"insufficient", "not enough", "cannot determine", "unable to determine", "unanswerable"}
	guidanceTokens = []string{"need", "missing", "provide"}
)

// topLevelRequired is the exact required key set of a model answer.
var topLevelRequired = []string{"label", "answer_text", "citations", "evidence_okay", "assumptions"}

// ValidationError is a structured contract rejection: a code from the set
// above, a human-readable message, and a bounded preview of the raw text.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Preview string `json:"preview"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("answer contract [%s]: %s", e.Code, e.Message)
}

// IsValidationError checks if an error is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate parses and checks raw model output against the answer contract.
//
// # Description
//
// Single pass, first failure wins, in this order: JSON parse, exact
// top-level key set, field types, label enum, citation shape,
// evidence_okay (ok=false is a hard rejection), assumptions, then the
// semantic checks: citation quotes and assumptions must be
// whitespace-normalized substrings of context (when context is given and
// the answer is not a refusal), and a refusal must contain both a refusal
// token and a guidance token and must not open with yes/no.
//
// # Inputs
//
//   - rawText: The model's raw response text.
//   - allowedLabels: Permitted label values, compared case-insensitively.
//   - context: The exact context string the prompt used; empty skips
//     grounding.
//
// # Outputs
//
//   - *datatypes.ModelAnswer: The parsed answer, label lowercased.
//   - error: *ValidationError describing the first violation.
func Validate(rawText string, allowedLabels []string, context string) (*datatypes.ModelAnswer, error) {
	fail := func(code, format string, args ...any) error {
		return &ValidationError{
			Code:    code,
			Message: fmt.Sprintf(format, args...),
			Preview: preview(rawText),
		}
	}

	if strings.TrimSpace(rawText) == "" {
		return nil, fail(CodeInvalidJSON, "empty model output")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(rawText), &top); err != nil {
		return nil, fail(CodeInvalidJSON, "model output is not a JSON object: %v", err)
	}

	for _, key := range topLevelRequired {
		if _, ok := top[key]; !ok {
			return nil, fail(CodeMissingKey, "missing required key %q", key)
		}
	}
	for key := range top {
		if key == "justification" {
			continue
		}
		known := false
		for _, want := range topLevelRequired {
			if key == want {
				known = true
				break
			}
		}
		if !known {
			return nil, fail(CodeExtraKey, "unexpected key %q", key)
		}
	}

	answer := &datatypes.ModelAnswer{}

	var label string
	if err := json.Unmarshal(top["label"], &label); err != nil {
		return nil, fail(CodeWrongType, "label must be a string")
	}
	label = strings.ToLower(strings.TrimSpace(label))
	if !labelAllowed(label, allowedLabels) {
		return nil, fail(CodeInvalidEnum, "label %q is not in the allowed set %v", label, allowedLabels)
	}
	answer.Label = label

	if err := json.Unmarshal(top["answer_text"], &answer.AnswerText); err != nil {
		return nil, fail(CodeWrongType, "answer_text must be a string")
	}
	if answer.AnswerText == "" {
		return nil, fail(CodeInvalidValue, "answer_text is empty")
	}

	citations, err := parseCitations(top["citations"], fail)
	if err != nil {
		return nil, err
	}
	answer.Citations = citations

	if err := json.Unmarshal(top["evidence_okay"], &answer.EvidenceOkay); err != nil {
		return nil, fail(CodeWrongType, "evidence_okay must be {ok: bool, reasons: [string]}")
	}
	if !answer.EvidenceOkay.Ok {
		return nil, fail(CodeEvidenceNotOk, "model reported evidence_okay.ok=false: %s",
			strings.Join(answer.EvidenceOkay.Reasons, "; "))
	}

	if err := json.Unmarshal(top["assumptions"], &answer.Assumptions); err != nil {
		return nil, fail(CodeWrongType, "assumptions must be an array of strings")
	}

	if raw, ok := top["justification"]; ok {
		if err := json.Unmarshal(raw, &answer.Justification); err != nil {
			return nil, fail(CodeWrongType, "justification must be a string")
		}
	}

	if context != "" && !answer.IsRefusal() {
		normalizedCtx := normalizeWhitespace(context)

		matched := false
		for _, c := range answer.Citations {
			if c.Quote != "" && strings.Contains(normalizedCtx, normalizeWhitespace(c.Quote)) {
				matched = true
				break
			}
		}
		if !matched {
			return nil, fail(CodeUngroundedCitation, "no citation quote appears in the supplied context")
		}

		for _, a := range answer.Assumptions {
			if !strings.Contains(normalizedCtx, normalizeWhitespace(a)) {
				return nil, fail(CodeAssumptionUnsupported, "assumption %q does not appear in the supplied context", preview(a))
			}
		}
	}

	if answer.IsRefusal() {
		if err := checkRefusalShape(answer.AnswerText, fail); err != nil {
			return nil, err
		}
	}

	return answer, nil
}

// parseCitations validates the citations array with a strict per-citation
// key set.
func parseCitations(raw json.RawMessage, fail func(code, format string, args ...any) error) ([]datatypes.Citation, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fail(CodeWrongType, "citations must be an array of objects")
	}

	citations := make([]datatypes.Citation, 0, len(items))
	for i, item := range items {
		for key := range item {
			switch key {
			case "section_id", "quote", "span_id", "source":
			default:
				return nil, fail(CodeExtraKey, "citation %d has unexpected key %q", i, key)
			}
		}

		var c datatypes.Citation
		for _, req := range []string{"section_id", "quote"} {
			field, ok := item[req]
			if !ok {
				return nil, fail(CodeMissingKey, "citation %d is missing %q", i, req)
			}
			var s string
			if err := json.Unmarshal(field, &s); err != nil {
				return nil, fail(CodeWrongType, "citation %d: %s must be a string", i, req)
			}
			if s == "" {
				return nil, fail(CodeInvalidValue, "citation %d: %s is empty", i, req)
			}
			if req == "section_id" {
				c.SectionID = s
			} else {
				c.Quote = s
			}
		}
		if field, ok := item["span_id"]; ok {
			if err := json.Unmarshal(field, &c.SpanID); err != nil {
				return nil, fail(CodeWrongType, "citation %d: span_id must be a string", i)
			}
		}
		if field, ok := item["source"]; ok {
			if err := json.Unmarshal(field, &c.Source); err != nil {
				return nil, fail(CodeWrongType, "citation %d: source must be a string", i)
			}
		}
		citations = append(citations, c)
	}
	return citations, nil
}

// checkRefusalShape enforces that an unanswerable answer reads like an
// actionable refusal.
func checkRefusalShape(answerText string, fail func(code, format string, args ...any) error) error {
	lower := strings.ToLower(strings.TrimSpace(answerText))

	// First word only: "Not enough information" is a fine refusal opener,
	// "No." is not.
	first := lower
	if fields := strings.Fields(lower); len(fields) > 0 {
		first = strings.Trim(fields[0], ".,:;!?")
	}
	if first == "yes" || first == "no" {
		return fail(CodeInvalidValue, "refusal answer_text must not open with yes/no")
	}
	if !containsAny(lower, refusalTokens) {
		return fail(CodeInvalidValue, "refusal answer_text lacks a refusal token (e.g. %q)", refusalTokens[0])
	}
	if !containsAny(lower, guidanceTokens) {
		return fail(CodeInvalidValue, "refusal answer_text lacks a guidance token (e.g. %q)", guidanceTokens[0])
	}
	return nil
}

func labelAllowed(label string, allowed []string) bool {
	for _, a := range allowed {
		if label == strings.ToLower(a) {
			return true
		}
	}
	return false
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// normalizeWhitespace collapses all whitespace runs to single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// preview bounds raw text for diagnostics, backing up to a rune boundary
// so the truncation never emits invalid UTF-8.
func preview(s string) string {
	if len(s) <= maxPreview {
		return s
	}
	cut := maxPreview
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
