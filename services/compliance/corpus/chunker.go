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
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
)

// subsectionMarkerRe matches lines that open a subsection, e.g. "(a) ..."
// or "(1) ...". Nested numeric markers are treated as their own subsection
// level in source order; the chunker does not build a marker hierarchy.
var subsectionMarkerRe = regexp.MustCompile(`(?m)^\(([a-zA-Z0-9]+)\)`)

// paragraphSplitRe separates paragraphs on blank-line boundaries for
// oversize splitting.
var paragraphSplitRe = regexp.MustCompile(`\n[ \t]*\n`)

// OversizeParagraphError is the loud failure for a single paragraph that
// alone exceeds the chunk budget. There is no sub-paragraph splitting
// policy; the snapshot text has to be fixed instead.
type OversizeParagraphError struct {
	DocID    string
	Length   int
	MaxChars int
}

// Error implements the error interface for OversizeParagraphError.
func (e *OversizeParagraphError) Error() string {
	return fmt.Sprintf("chunk %s: a single paragraph of %d chars exceeds the %d char budget",
		e.DocID, e.Length, e.MaxChars)
}

// IsOversizeParagraph checks if an error is an *OversizeParagraphError.
func IsOversizeParagraph(err error) bool {
	_, ok := err.(*OversizeParagraphError)
	return ok
}

// Chunk splits one section's text into corpus documents.
//
// # Description
//
// Deterministic and side-effect-free: the same inputs always produce the
// same documents in the same order. The algorithm:
//
//  1. Scan for subsection markers (lines beginning "(<alnum>)").
//  2. No markers: one section-kind chunk for the whole text.
//  3. Markers: a section-kind chunk for non-empty lead-in text before the
//     first marker, then one subsection-kind chunk per marker span in
//     source order, ids "<section>(<label>)", parented to the section.
//  4. Any chunk over maxChars is split on blank-line paragraph boundaries:
//     the container keeps its id with the leading paragraphs that fit, and
//     the remaining paragraphs become paragraph-kind children with ids
//     "<container>#p0001", "#p0002", ... in source order.
//  5. A single paragraph that alone exceeds maxChars fails loudly with
//     *OversizeParagraphError; nothing is silently truncated.
//
// The caller stamps schema version, source, and provenance fields; Chunk
// only fills identity, kind, text, parentage, and ordinals.
//
// # Inputs
//
//   - sectionID: Canonical section id (e.g. "EAR-736.2"). Not re-validated.
//   - heading: Optional human title, recorded on the section chunk.
//   - text: The section body. Leading/trailing whitespace is trimmed.
//   - maxChars: Chunk budget; must be positive.
//
// # Outputs
//
//   - []datatypes.CorpusDocument: Chunks in source order.
//   - error: *OversizeParagraphError, or a budget misuse error.
func Chunk(sectionID, heading, text string, maxChars int) ([]datatypes.CorpusDocument, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("maxChars must be positive, got %d", maxChars)
	}
	text = strings.TrimSpace(text)

	ordinal := 0
	next := func() int {
		o := ordinal
		ordinal++
		return o
	}

	var docs []datatypes.CorpusDocument
	markers := subsectionMarkerRe.FindAllStringSubmatchIndex(text, -1)

	if len(markers) == 0 {
		split, err := fitBudget(datatypes.CorpusDocument{
			DocID:     sectionID,
			SectionID: sectionID,
			Text:      text,
			ChunkKind: datatypes.ChunkKindSection,
			Title:     heading,
		}, maxChars, next)
		if err != nil {
			return nil, err
		}
		return split, nil
	}

	// Lead-in detection happens exactly once, at the very first marker.
	lead := strings.TrimSpace(text[:markers[0][0]])
	sectionEmitted := lead != ""
	if sectionEmitted {
		split, err := fitBudget(datatypes.CorpusDocument{
			DocID:     sectionID,
			SectionID: sectionID,
			Text:      lead,
			ChunkKind: datatypes.ChunkKindSection,
			Title:     heading,
		}, maxChars, next)
		if err != nil {
			return nil, err
		}
		docs = append(docs, split...)
	}

	for i, m := range markers {
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		label := strings.ToLower(text[m[2]:m[3]])
		subID := fmt.Sprintf("%s(%s)", sectionID, label)

		parent := ""
		if sectionEmitted {
			parent = sectionID
		}
		split, err := fitBudget(datatypes.CorpusDocument{
			DocID:     subID,
			SectionID: subID,
			Text:      strings.TrimSpace(text[m[0]:end]),
			ChunkKind: datatypes.ChunkKindSubsection,
			ParentID:  parent,
		}, maxChars, next)
		if err != nil {
			return nil, err
		}
		docs = append(docs, split...)
	}

	return docs, nil
}

// fitBudget returns doc unchanged when it fits maxChars, otherwise the
// shortened container followed by its paragraph children.
func fitBudget(doc datatypes.CorpusDocument, maxChars int, next func() int) ([]datatypes.CorpusDocument, error) {
	if len(doc.Text) <= maxChars {
		doc.Ordinal = next()
		return []datatypes.CorpusDocument{doc}, nil
	}

	paragraphs := paragraphSplitRe.Split(doc.Text, -1)
	for i, p := range paragraphs {
		paragraphs[i] = strings.TrimSpace(p)
	}
	for _, p := range paragraphs {
		if len(p) > maxChars {
			return nil, &OversizeParagraphError{DocID: doc.DocID, Length: len(p), MaxChars: maxChars}
		}
	}

	// The container keeps the leading paragraphs that fit the budget.
	containerText, rest := packParagraphs(paragraphs, maxChars)
	container := doc
	container.Text = containerText
	container.Ordinal = next()
	docs := []datatypes.CorpusDocument{container}

	childNum := 0
	for len(rest) > 0 {
		var childText string
		childText, rest = packParagraphs(rest, maxChars)
		childNum++
		docs = append(docs, datatypes.CorpusDocument{
			DocID:     fmt.Sprintf("%s#p%04d", doc.DocID, childNum),
			SectionID: doc.SectionID,
			Text:      childText,
			ChunkKind: datatypes.ChunkKindParagraph,
			ParentID:  doc.DocID,
			Ordinal:   next(),
		})
	}

	return docs, nil
}

// packParagraphs greedily joins leading paragraphs (blank-line separated)
// while the result stays within maxChars, and returns the remainder.
// Callers have already rejected single paragraphs over the budget, so the
// first paragraph always fits.
func packParagraphs(paragraphs []string, maxChars int) (string, []string) {
	var b strings.Builder
	i := 0
	for ; i < len(paragraphs); i++ {
		add := len(paragraphs[i])
		if b.Len() > 0 {
			add += 2 // joining "\n\n"
		}
		if b.Len()+add > maxChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(paragraphs[i])
	}
	return b.String(), paragraphs[i:]
}
