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

// LabelUnanswerable is the reserved answer label for refusals. It is always
// a member of the allowed-label set and triggers the refusal-shape checks in
// the output contract.
const LabelUnanswerable = "unanswerable"

// Citation is one quoted piece of evidence in a model answer. Quote must be
// a verbatim (whitespace-normalized) substring of the context the model was
// given; the output contract enforces this.
type Citation struct {
	SectionID string `json:"section_id"`
	Quote     string `json:"quote"`
	SpanID    string `json:"span_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

// EvidenceCheck is the model's own assessment of its evidence. Ok == false
// is a hard rejection during validation, not a soft signal.
type EvidenceCheck struct {
	Ok      bool     `json:"ok"`
	Reasons []string `json:"reasons"`
}

// ModelAnswer is the validated output of one generation call. It exists only
// within a single pipeline call and is never mutated after validation: the
// raw model output is either fully accepted into this shape or fully
// rejected with a contract error.
type ModelAnswer struct {
	Label         string        `json:"label"`
	AnswerText    string        `json:"answer_text"`
	Citations     []Citation    `json:"citations"`
	EvidenceOkay  EvidenceCheck `json:"evidence_okay"`
	Assumptions   []string      `json:"assumptions"`
	Justification string        `json:"justification,omitempty"`
}

// IsRefusal reports whether the answer carries the refusal label.
func (a *ModelAnswer) IsRefusal() bool {
	return a.Label == LabelUnanswerable
}
