// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLabels = []string{"permitted", "prohibited", "license_required", "unanswerable"}

func assertFailsWith(t *testing.T, raw, context, wantCode string) *ValidationError {
	t.Helper()
	_, err := Validate(raw, testLabels, context)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, wantCode, ve.Code)
	return ve
}

func TestValidate_WellFormedAnswer(t *testing.T) {
	raw := `{
		"label": "Permitted",
		"answer_text": "Export is permitted under License Exception TSU.",
		"citations": [{"section_id": "EAR-740.13", "quote": "License Exception TSU", "source": "snapshot"}],
		"evidence_okay": {"ok": true, "reasons": ["quote located"]},
		"assumptions": [],
		"justification": "Direct match."
	}`
	context := "[EAR-740.13] License Exception TSU authorizes certain software exports."

	answer, err := Validate(raw, testLabels, context)
	require.NoError(t, err)
	assert.Equal(t, "permitted", answer.Label, "label is lowercased")
	assert.False(t, answer.IsRefusal())
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "EAR-740.13", answer.Citations[0].SectionID)
	assert.Equal(t, "Direct match.", answer.Justification)
}

// TestValidate_UngroundedCitation reproduces the canonical rejection: a
// confident answer whose only quote does not appear in the context.
func TestValidate_UngroundedCitation(t *testing.T) {
	raw := `{"label":"permitted","answer_text":"Yes","citations":[{"section_id":"EAR-740.1","quote":"NOT IN CONTEXT"}],"evidence_okay":{"ok":true,"reasons":[]},"assumptions":[]}`
	ve := assertFailsWith(t, raw, "[EAR-740.1] License Exceptions intro", CodeUngroundedCitation)
	assert.NotEmpty(t, ve.Preview)
}

func TestValidate_GroundingNormalizesWhitespace(t *testing.T) {
	raw := `{"label":"permitted","answer_text":"Allowed.","citations":[{"section_id":"EAR-740.1","quote":"License   Exceptions\nintro"}],"evidence_okay":{"ok":true,"reasons":[]},"assumptions":[]}`
	_, err := Validate(raw, testLabels, "[EAR-740.1] License Exceptions intro text")
	assert.NoError(t, err, "quote differing only in whitespace must match")
}

func TestValidate_AssumptionUnsupported(t *testing.T) {
	raw := `{"label":"permitted","answer_text":"Allowed.","citations":[{"section_id":"EAR-740.1","quote":"License Exceptions intro"}],"evidence_okay":{"ok":true,"reasons":[]},"assumptions":["the item is EAR99"]}`
	assertFailsWith(t, raw, "[EAR-740.1] License Exceptions intro", CodeAssumptionUnsupported)
}

func TestValidate_RefusalSkipsGrounding(t *testing.T) {
	raw := `{"label":"unanswerable","answer_text":"There is insufficient information; provide the ECCN of the item.","citations":[],"evidence_okay":{"ok":true,"reasons":[]},"assumptions":[]}`
	answer, err := Validate(raw, testLabels, "[EAR-740.1] unrelated context")
	require.NoError(t, err)
	assert.True(t, answer.IsRefusal())
	assert.Empty(t, answer.Citations)
}

func TestValidate_NoContextSkipsGrounding(t *testing.T) {
	raw := `{"label":"permitted","answer_text":"Allowed.","citations":[{"section_id":"EAR-740.1","quote":"anything at all"}],"evidence_okay":{"ok":true,"reasons":[]},"assumptions":[]}`
	_, err := Validate(raw, testLabels, "")
	assert.NoError(t, err)
}

func TestValidate_StructuralFailures(t *testing.T) {
	base := `{"label":"permitted","answer_text":"Allowed.","citations":[],"evidence_okay":{"ok":true,"reasons":[]},"assumptions":[]}`

	tests := []struct {
		name     string
		raw      string
		wantCode string
	}{
		{"empty input", "   ", CodeInvalidJSON},
		{"not json", "I think the answer is yes.", CodeInvalidJSON},
		{"json array", `[1,2,3]`, CodeInvalidJSON},
		{"missing key", `{"label":"permitted","answer_text":"x","citations":[],"assumptions":[]}`, CodeMissingKey},
		{"extra key", strings.Replace(base, `"assumptions":[]`, `"assumptions":[],"confidence":0.9`, 1), CodeExtraKey},
		{"label wrong type", strings.Replace(base, `"label":"permitted"`, `"label":7`, 1), CodeWrongType},
		{"label empty", strings.Replace(base, `"label":"permitted"`, `"label":""`, 1), CodeInvalidEnum},
		{"label not allowed", strings.Replace(base, `"label":"permitted"`, `"label":"maybe"`, 1), CodeInvalidEnum},
		{"answer_text empty", strings.Replace(base, `"answer_text":"Allowed."`, `"answer_text":""`, 1), CodeInvalidValue},
		{"citations wrong type", strings.Replace(base, `"citations":[]`, `"citations":"none"`, 1), CodeWrongType},
		{"evidence wrong shape", strings.Replace(base, `"evidence_okay":{"ok":true,"reasons":[]}`, `"evidence_okay":true`, 1), CodeWrongType},
		{"assumptions wrong type", strings.Replace(base, `"assumptions":[]`, `"assumptions":"none"`, 1), CodeWrongType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assertFailsWith(t, tc.raw, "", tc.wantCode)
		})
	}
}

func TestValidate_LabelCaseInsensitive(t *testing.T) {
	raw := `{"label":"LICENSE_REQUIRED","answer_text":"A license is required.","citations":[],"evidence_okay":{"ok":true,"reasons":[]},"assumptions":[]}`
	answer, err := Validate(raw, testLabels, "")
	require.NoError(t, err)
	assert.Equal(t, "license_required", answer.Label)
}

func TestValidate_CitationChecks(t *testing.T) {
	tests := []struct {
		name     string
		citation string
		wantCode string
	}{
		{"missing quote", `{"section_id":"EAR-740.1"}`, CodeMissingKey},
		{"missing section_id", `{"quote":"q"}`, CodeMissingKey},
		{"empty quote", `{"section_id":"EAR-740.1","quote":""}`, CodeInvalidValue},
		{"unknown key", `{"section_id":"EAR-740.1","quote":"q","confidence":1}`, CodeExtraKey},
		{"quote wrong type", `{"section_id":"EAR-740.1","quote":3}`, CodeWrongType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := `{"label":"permitted","answer_text":"x","citations":[` + tc.citation + `],"evidence_okay":{"ok":true,"reasons":[]},"assumptions":[]}`
			assertFailsWith(t, raw, "", tc.wantCode)
		})
	}
}

func TestValidate_EvidenceNotOkIsHardRejection(t *testing.T) {
	raw := `{"label":"permitted","answer_text":"Allowed.","citations":[],"evidence_okay":{"ok":false,"reasons":["quote not found"]},"assumptions":[]}`
	ve := assertFailsWith(t, raw, "", CodeEvidenceNotOk)
	assert.Contains(t, ve.Message, "quote not found")
}

func TestValidate_RefusalShape(t *testing.T) {
	shell := func(text string) string {
		return `{"label":"unanswerable","answer_text":"` + text + `","citations":[],"evidence_okay":{"ok":true,"reasons":[]},"assumptions":[]}`
	}

	_, err := Validate(shell("Not enough information in the provided sections; provide the ECCN."), testLabels, "")
	assert.NoError(t, err, "refusal with refusal and guidance tokens passes")

	assertFailsWith(t, shell("No, this cannot determine anything; provide more detail."), "", CodeInvalidValue)
	assertFailsWith(t, shell("The regulations are silent here."), "", CodeInvalidValue)
	assertFailsWith(t, shell("There is insufficient information here."), "", CodeInvalidValue)
}

func TestValidate_PreviewIsBounded(t *testing.T) {
	raw := "garbage " + strings.Repeat("x", 2000)
	ve := assertFailsWith(t, raw, "", CodeInvalidJSON)
	assert.LessOrEqual(t, len(ve.Preview), 400)
}

func TestValidate_PreviewNeverSplitsARune(t *testing.T) {
	// A multi-byte rune straddling the 400-byte mark must be dropped
	// whole, not cut mid-sequence.
	raw := "garbage " + strings.Repeat("x", 389) + "\u00a7\u00a7\u00a7\u00a7"
	ve := assertFailsWith(t, raw, "", CodeInvalidJSON)
	assert.LessOrEqual(t, len(ve.Preview), 400)
	assert.True(t, utf8.ValidString(ve.Preview))
}
