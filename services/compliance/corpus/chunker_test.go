// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package corpus

import (
	"fmt"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChunk_SectionWithSubsections reproduces the canonical split: a
// section with lead-in text and subsections (a) and (b) yields exactly
// three documents with stable ids.
func TestChunk_SectionWithSubsections(t *testing.T) {
	text := "General prohibitions overview.\n" +
		"(a) You may not export without a license.\n" +
		"(b) You may not reexport controlled items."

	docs, err := Chunk("EAR-736.2", "General Prohibitions", text, 10000)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "EAR-736.2", docs[0].DocID)
	assert.Equal(t, datatypes.ChunkKindSection, docs[0].ChunkKind)
	assert.Equal(t, "General Prohibitions", docs[0].Title)
	assert.Empty(t, docs[0].ParentID)

	assert.Equal(t, "EAR-736.2(a)", docs[1].DocID)
	assert.Equal(t, datatypes.ChunkKindSubsection, docs[1].ChunkKind)
	assert.Equal(t, "EAR-736.2", docs[1].ParentID)
	assert.True(t, strings.HasPrefix(docs[1].Text, "(a)"))

	assert.Equal(t, "EAR-736.2(b)", docs[2].DocID)
	assert.Equal(t, "EAR-736.2", docs[2].ParentID)

	// Ordinals follow source order.
	for i, doc := range docs {
		assert.Equal(t, i, doc.Ordinal)
	}
}

// TestChunk_NoMarkers verifies a marker-free section becomes one chunk.
func TestChunk_NoMarkers(t *testing.T) {
	docs, err := Chunk("EAR-734.1", "Scope", "Plain text without any markers.", 10000)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "EAR-734.1", docs[0].DocID)
	assert.Equal(t, datatypes.ChunkKindSection, docs[0].ChunkKind)
	assert.Equal(t, "Plain text without any markers.", docs[0].Text)
}

// TestChunk_NoLeadIn verifies that a section whose text opens directly with
// a marker emits no section container, and the subsections carry no parent
// (there is no container document to point at).
func TestChunk_NoLeadIn(t *testing.T) {
	text := "(a) First rule.\n(b) Second rule."
	docs, err := Chunk("EAR-736.2", "", text, 10000)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "EAR-736.2(a)", docs[0].DocID)
	assert.Empty(t, docs[0].ParentID)
	assert.Equal(t, "EAR-736.2(b)", docs[1].DocID)
	assert.Empty(t, docs[1].ParentID)
}

// TestChunk_NestedNumericMarkers verifies that nested levels like (a) then
// (1) are each their own subsection in source order, not a hierarchy.
func TestChunk_NestedNumericMarkers(t *testing.T) {
	text := "Intro.\n(a) Outer rule.\n(1) Inner detail.\n(b) Next rule."
	docs, err := Chunk("EAR-740.2", "", text, 10000)
	require.NoError(t, err)
	require.Len(t, docs, 4)
	assert.Equal(t, "EAR-740.2", docs[0].DocID)
	assert.Equal(t, "EAR-740.2(a)", docs[1].DocID)
	assert.Equal(t, "EAR-740.2(1)", docs[2].DocID)
	assert.Equal(t, "EAR-740.2(b)", docs[3].DocID)
}

// TestChunk_BudgetSplit verifies oversize chunks split on blank-line
// boundaries into a container plus paragraph children, each within budget,
// and that the paragraphs survive in order.
func TestChunk_BudgetSplit(t *testing.T) {
	paragraphs := make([]string, 6)
	for i := range paragraphs {
		paragraphs[i] = fmt.Sprintf("Paragraph %d. %s", i, strings.Repeat("x", 40))
	}
	text := strings.Join(paragraphs, "\n\n")

	docs, err := Chunk("EAR-744.6", "", text, 120)
	require.NoError(t, err)
	require.Greater(t, len(docs), 1, "budget should force a split")

	assert.Equal(t, "EAR-744.6", docs[0].DocID)
	assert.Equal(t, datatypes.ChunkKindSection, docs[0].ChunkKind)
	for i, doc := range docs {
		assert.LessOrEqual(t, len(doc.Text), 120, "doc %s over budget", doc.DocID)
		if i > 0 {
			assert.Equal(t, fmt.Sprintf("EAR-744.6#p%04d", i), doc.DocID)
			assert.Equal(t, datatypes.ChunkKindParagraph, doc.ChunkKind)
			assert.Equal(t, "EAR-744.6", doc.ParentID)
		}
	}

	// Concatenating all chunk text in order reconstructs the section text
	// modulo blank-line whitespace.
	var parts []string
	for _, doc := range docs {
		parts = append(parts, doc.Text)
	}
	assert.Equal(t, text, strings.Join(parts, "\n\n"))
}

// TestChunk_OversizeParagraphFailsLoudly verifies the documented failure
// for a single paragraph over the budget.
func TestChunk_OversizeParagraphFailsLoudly(t *testing.T) {
	text := "Short intro.\n\n" + strings.Repeat("y", 500)
	_, err := Chunk("EAR-744.6", "", text, 100)
	require.Error(t, err)
	assert.True(t, IsOversizeParagraph(err), "want OversizeParagraphError, got %v", err)

	var oe *OversizeParagraphError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 500, oe.Length)
	assert.Equal(t, 100, oe.MaxChars)
}

// TestChunk_Deterministic verifies bit-for-bit repeatability.
func TestChunk_Deterministic(t *testing.T) {
	text := "Lead.\n(a) One.\n(b) Two.\n\n" + strings.Repeat("z", 50)
	first, err := Chunk("EAR-736.2", "T", text, 10000)
	require.NoError(t, err)
	second, err := Chunk("EAR-736.2", "T", text, 10000)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
