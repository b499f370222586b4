// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSectionID_CanonicalForms verifies that all common spellings of the
// same section collapse to one canonical string.
func TestSectionID_CanonicalForms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain cfr reference", "15 CFR 736.2", "EAR-736.2"},
		{"lowercase cfr reference", "15 cfr 736.2", "EAR-736.2"},
		{"dotted cfr abbreviation", "15 C.F.R. 736.2", "EAR-736.2"},
		{"section mark with subsection", "§ 736.2(b)", "EAR-736.2(b)"},
		{"section mark no space", "§736.2(b)", "EAR-736.2(b)"},
		{"ear dash prefix", "EAR-736.2(b)", "EAR-736.2(b)"},
		{"ear space prefix", "EAR 736.2", "EAR-736.2"},
		{"uppercase subsection label", "736.2(B)", "EAR-736.2(b)"},
		{"internal spaces", "736.2 (b) (1)", "EAR-736.2(b)(1)"},
		{"trailing dot", "736.2.", "EAR-736.2"},
		{"non-breaking spaces", "15 CFR 736.2", "EAR-736.2"},
		{"part only", "736", "EAR-736"},
		{"letter tail component", "740.13a", "EAR-740.13a"},
		{"nested numeric subsection", "736.2(b)(4)", "EAR-736.2(b)(4)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SectionID(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestSectionID_Idempotent verifies normalizing a canonical id returns it
// unchanged.
func TestSectionID_Idempotent(t *testing.T) {
	canon := []string{"EAR-736.2", "EAR-736.2(b)", "EAR-740.13a(1)", "EAR-736"}
	for _, id := range canon {
		got, err := SectionID(id)
		require.NoError(t, err, "id %q", id)
		assert.Equal(t, id, got, "canonical id must normalize to itself")
		assert.True(t, IsCanonicalSectionID(id))
	}
}

// TestSectionID_Invalid verifies that garbage references fail as validation
// errors, not panics.
func TestSectionID_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"not a reference",
		"CFR",
		"736.2(b", // unbalanced parenthesis
		"736..2",
		"(a)736",
		"EAR-736.2#p0001", // section ids never carry doc suffixes
	}
	for _, raw := range invalid {
		_, err := SectionID(raw)
		require.Error(t, err, "raw %q", raw)
		assert.ErrorIs(t, err, ErrInvalidReference)
	}
}

// TestDocID_SuffixHandling covers the doc-id variant with a "#" suffix.
func TestDocID_SuffixHandling(t *testing.T) {
	got, err := DocID("EAR-736.2(a)#p0001")
	require.NoError(t, err)
	assert.Equal(t, "EAR-736.2(a)#p0001", got)

	// Left side is normalized like a section id.
	got, err = DocID("§ 736.2(A)#p0002")
	require.NoError(t, err)
	assert.Equal(t, "EAR-736.2(a)#p0002", got)

	// Without a suffix DocID behaves exactly like SectionID.
	got, err = DocID("15 CFR 736.2")
	require.NoError(t, err)
	assert.Equal(t, "EAR-736.2", got)
}

func TestDocID_InvalidSuffixes(t *testing.T) {
	invalid := []string{
		"EAR-736.2#",              // empty suffix
		"EAR-736.2#P0001",         // uppercase not allowed
		"EAR-736.2#a#b",           // more than one delimiter
		"EAR-736.2#_leading",      // must start alphanumeric
		"EAR-736.2#" + strings.Repeat("x", 202), // too long
	}
	for _, raw := range invalid {
		_, err := DocID(raw)
		require.Error(t, err, "raw %q", raw)
		assert.ErrorIs(t, err, ErrInvalidReference)
	}
}

func TestPartOf(t *testing.T) {
	part, err := PartOf("EAR-736.2(b)")
	require.NoError(t, err)
	assert.Equal(t, "736", part)

	part, err = PartOf("EAR-740")
	require.NoError(t, err)
	assert.Equal(t, "740", part)

	_, err = PartOf("736.2")
	assert.Error(t, err, "missing EAR- prefix must fail")

	_, err = PartOf("EAR-36.2")
	assert.Error(t, err, "two-digit part must fail")
}
