// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package corpus builds and validates the retrieval corpus: the schema
// contract for corpus documents, the deterministic chunker, the snapshot
// loader, and the content digest that binds a corpus to its vector index.
package corpus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
	"github.com/AleutianAI/AleutianComply/services/compliance/normalize"
	"github.com/go-playground/validator/v10"
)

// Issue codes reported by the corpus contract. Each code names one class of
// document problem; validation collects every issue in one pass instead of
// failing fast on the first.
const (
	IssueMissingField    = "missing_field"
	IssueInvalidEnum     = "invalid_enum"
	IssueInvalidValue    = "invalid_value"
	IssueInvalidID       = "invalid_id"
	IssueSchemaVersion   = "schema_version_mismatch"
	IssueDuplicateDocID  = "duplicate_doc_id"
	IssueDanglingParent  = "dangling_parent"
	IssueSelfParent      = "self_parent"
	IssuePartMismatch    = "part_mismatch"
	IssueSectionMismatch = "section_mismatch"
)

// Issue is one structured validation finding. Index is the document's
// position in the validated slice; DocID is copied for log readability even
// when the id itself is the problem.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Index   int    `json:"index"`
	DocID   string `json:"doc_id,omitempty"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] doc %d (%s): %s", i.Code, i.Index, i.DocID, i.Message)
}

// ContractError aggregates every issue found by RequireValid into one
// multi-line failure.
type ContractError struct {
	Issues []Issue
}

// Error implements the error interface for ContractError.
func (e *ContractError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "corpus contract violated: %d issue(s)", len(e.Issues))
	for _, issue := range e.Issues {
		b.WriteString("\n  ")
		b.WriteString(issue.String())
	}
	return b.String()
}

// IsContractError checks if an error is a *ContractError.
func IsContractError(err error) bool {
	_, ok := err.(*ContractError)
	return ok
}

// fieldValidator performs the per-field (presence, enum, format) portion of
// the contract via struct tags on datatypes.CorpusDocument.
var fieldValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a candidate corpus field-by-field and across documents.
//
// # Description
//
// Per document: required fields, enum membership (chunk_kind, source),
// 3-digit part format, canonical doc/section ids, schema version. Across
// documents: duplicate doc_ids, dangling or self-referential parent_ids,
// part/section mismatches, and doc_id/section_id prefix agreement.
//
// Validate never fails fast: it returns every issue it can find so a
// builder run reports all problems in one pass. An empty slice means the
// corpus satisfies the contract.
func Validate(docs []datatypes.CorpusDocument) []Issue {
	var issues []Issue
	byID := make(map[string]int, len(docs))

	for i, doc := range docs {
		issues = append(issues, validateFields(i, &doc)...)
		issues = append(issues, validateIDs(i, &doc)...)

		if firstIdx, dup := byID[doc.DocID]; dup {
			issues = append(issues, Issue{
				Code:    IssueDuplicateDocID,
				Message: fmt.Sprintf("doc_id already used by document %d", firstIdx),
				Index:   i,
				DocID:   doc.DocID,
			})
		} else if doc.DocID != "" {
			byID[doc.DocID] = i
		}
	}

	// Parent resolution runs after the id map is complete so forward
	// references are legal.
	for i, doc := range docs {
		if doc.ParentID == "" {
			continue
		}
		if doc.ParentID == doc.DocID {
			issues = append(issues, Issue{
				Code:    IssueSelfParent,
				Message: "parent_id references the document itself",
				Index:   i,
				DocID:   doc.DocID,
			})
			continue
		}
		if _, ok := byID[doc.ParentID]; !ok {
			issues = append(issues, Issue{
				Code:    IssueDanglingParent,
				Message: fmt.Sprintf("parent_id %q does not name any document", doc.ParentID),
				Index:   i,
				DocID:   doc.DocID,
			})
		}
	}

	return issues
}

// RequireValid aggregates Validate's findings into a single error, or nil
// when the corpus is clean. This is the gate builders call before writing
// anything to disk.
func RequireValid(docs []datatypes.CorpusDocument) error {
	issues := Validate(docs)
	if len(issues) == 0 {
		return nil
	}
	return &ContractError{Issues: issues}
}

// validateFields maps struct-tag failures onto contract issues.
func validateFields(i int, doc *datatypes.CorpusDocument) []Issue {
	var issues []Issue

	if err := fieldValidator.Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []Issue{{Code: IssueInvalidValue, Message: err.Error(), Index: i, DocID: doc.DocID}}
		}
		for _, fe := range verrs {
			code := IssueInvalidValue
			switch fe.Tag() {
			case "required":
				code = IssueMissingField
			case "oneof":
				code = IssueInvalidEnum
			}
			issues = append(issues, Issue{
				Code:    code,
				Message: fmt.Sprintf("field %s failed %q validation", fe.Field(), fe.Tag()),
				Index:   i,
				DocID:   doc.DocID,
			})
		}
	}

	if doc.SchemaVersion != "" && doc.SchemaVersion != datatypes.CorpusSchemaVersion {
		issues = append(issues, Issue{
			Code:    IssueSchemaVersion,
			Message: fmt.Sprintf("schema_version %q, want %q", doc.SchemaVersion, datatypes.CorpusSchemaVersion),
			Index:   i,
			DocID:   doc.DocID,
		})
	}

	return issues
}

// validateIDs enforces canonical-id correctness and the id cross-field
// invariants on a single document.
func validateIDs(i int, doc *datatypes.CorpusDocument) []Issue {
	var issues []Issue

	if doc.DocID != "" && !normalize.IsCanonicalDocID(doc.DocID) {
		issues = append(issues, Issue{
			Code:    IssueInvalidID,
			Message: "doc_id is not in canonical form",
			Index:   i,
			DocID:   doc.DocID,
		})
	}
	if doc.SectionID != "" {
		if !normalize.IsCanonicalSectionID(doc.SectionID) {
			issues = append(issues, Issue{
				Code:    IssueInvalidID,
				Message: fmt.Sprintf("section_id %q is not in canonical form", doc.SectionID),
				Index:   i,
				DocID:   doc.DocID,
			})
		} else {
			// doc_id must equal section_id, or section_id plus one suffix.
			if doc.DocID != "" && doc.DocID != doc.SectionID &&
				!strings.HasPrefix(doc.DocID, doc.SectionID+"#") {
				issues = append(issues, Issue{
					Code:    IssueSectionMismatch,
					Message: fmt.Sprintf("doc_id does not extend section_id %q", doc.SectionID),
					Index:   i,
					DocID:   doc.DocID,
				})
			}
			if doc.Part != "" {
				want, err := normalize.PartOf(doc.SectionID)
				if err != nil || doc.Part != want {
					issues = append(issues, Issue{
						Code:    IssuePartMismatch,
						Message: fmt.Sprintf("part %q does not match section_id %q", doc.Part, doc.SectionID),
						Index:   i,
						DocID:   doc.DocID,
					})
				}
			}
		}
	}

	return issues
}
