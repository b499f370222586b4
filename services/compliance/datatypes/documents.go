// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the data contracts shared by the compliance
// service: corpus documents, index metadata, model answers, and the
// request/response shapes of the ask pipeline.
package datatypes

// CorpusSchemaVersion tags every corpus document written by this release.
// Bump when a field is added, removed, or changes meaning.
const CorpusSchemaVersion = "ccd.v1"

// IndexSchemaVersion tags the index metadata sidecar format.
const IndexSchemaVersion = "cim.v1"

// Chunk kinds for CorpusDocument.ChunkKind.
const (
	ChunkKindSection    = "section"
	ChunkKindSubsection = "subsection"
	ChunkKindParagraph  = "paragraph"
)

// Document sources for CorpusDocument.Source.
const (
	SourceSnapshot = "snapshot"
	SourceAPI      = "api"
	SourceOther    = "other"
)

// CorpusDocument is one retrievable unit of regulatory text.
//
// Documents are created once by the corpus builder and never mutated
// afterward; the corpus as a whole is versioned by a digest over
// (doc_id, text) pairs in sorted doc_id order.
//
// Invariants (enforced by the corpus package):
//   - DocID is globally unique and equals SectionID, or SectionID plus a
//     single "#<suffix>" stable suffix.
//   - ParentID, when set, names another document's DocID (never its own).
//   - Part, when set, matches the leading part number of SectionID.
type CorpusDocument struct {
	SchemaVersion string `json:"schema_version" validate:"required"`
	DocID         string `json:"doc_id" validate:"required"`
	SectionID     string `json:"section_id" validate:"required"`
	Text          string `json:"text" validate:"required"`
	ChunkKind     string `json:"chunk_kind" validate:"required,oneof=section subsection paragraph"`
	Source        string `json:"source" validate:"required,oneof=snapshot api other"`
	SourceRef     string `json:"source_ref" validate:"required"`
	Title         string `json:"title,omitempty"`
	Part          string `json:"part,omitempty" validate:"omitempty,len=3,number"`
	URL           string `json:"url,omitempty" validate:"omitempty,url"`
	ParentID      string `json:"parent_id,omitempty"`
	Ordinal       int    `json:"ordinal"`
	Hash          string `json:"hash,omitempty"`
}

// SnapshotRecord is one line of a snapshot JSONL file, the raw input to the
// corpus builder. SectionID is the un-normalized reference as it appears in
// the source material.
type SnapshotRecord struct {
	SectionID string `json:"section_id"`
	Heading   string `json:"heading,omitempty"`
	Text      string `json:"text"`
	SourceRef string `json:"source_ref,omitempty"`
	URL       string `json:"url,omitempty"`
}

// SnapshotBinding optionally pins index metadata to the snapshot the corpus
// was built from.
type SnapshotBinding struct {
	SnapshotID     string `json:"snapshot_id"`
	SnapshotSHA256 string `json:"snapshot_sha256"`
}

// MetadataRow is the per-vector sidecar entry. Row order is the vector's
// internal id: rows[i] describes the vector stored with id i.
type MetadataRow struct {
	DocID     string `json:"doc_id"`
	SectionID string `json:"section_id"`
	ChunkKind string `json:"chunk_kind"`
	SourceRef string `json:"source_ref"`
	Text      string `json:"text"`
	Title     string `json:"title,omitempty"`
}

// IndexMetadata binds a vector index file to the exact corpus it was built
// from. A retriever must refuse to serve results when
// len(Rows) != DocCount or DocCount != the index's vector count.
type IndexMetadata struct {
	SchemaVersion       string           `json:"schema_version"`
	CorpusSchemaVersion string           `json:"corpus_schema_version"`
	CorpusDigest        string           `json:"corpus_digest"`
	DocCount            int              `json:"doc_count"`
	EmbeddingModel      string           `json:"embedding_model"`
	Snapshot            *SnapshotBinding `json:"snapshot,omitempty"`
	Rows                []MetadataRow    `json:"rows"`
}
