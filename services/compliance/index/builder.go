// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index builds, persists, and queries the vector index that backs
// retrieval: embedding backends, an exact flat index, the metadata sidecar
// binding the index to its corpus, and the retriever with its pairing
// integrity checks.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianComply/services/compliance/corpus"
	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
	"golang.org/x/sync/errgroup"
)

// Embedding batch sizing for index builds.
const (
	embedBatchSize   = 64
	embedConcurrency = 4
)

// MetaPath returns the metadata sidecar path for an index file.
func MetaPath(indexPath string) string {
	return indexPath + ".meta.json"
}

// BuildIndex embeds a corpus and writes the index plus its metadata sidecar.
//
// # Description
//
// The corpus is sorted by doc_id and re-gated through the corpus contract,
// then embedded batch by batch. Vector i belongs to document i in sorted
// order, and metadata rows are emitted in the same order, so row index,
// vector id, and document stay paired by construction. Both files are
// staged as temporaries and committed by rename only after both writes
// succeed, sidecar first; a failure before the first commit leaves any
// existing pair untouched.
//
// # Inputs
//
//   - ctx: Cancels in-flight embedding batches.
//   - docs: The corpus to index. Order does not matter.
//   - model: Embedding backend; its Name() is recorded in the metadata.
//   - indexPath: Destination index file. The sidecar goes to MetaPath(indexPath).
//   - snapshot: Optional snapshot binding recorded in the metadata.
//
// # Outputs
//
//   - error: Contract, embedding, or write failure.
func BuildIndex(ctx context.Context, docs []datatypes.CorpusDocument, model EmbeddingModel, indexPath string, snapshot *datatypes.SnapshotBinding) error {
	if len(docs) == 0 {
		return fmt.Errorf("build index: empty corpus")
	}
	if err := corpus.RequireValid(docs); err != nil {
		return err
	}

	sorted := make([]datatypes.CorpusDocument, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].DocID < sorted[b].DocID })

	start := time.Now()
	vectors, err := embedAll(ctx, model, sorted)
	if err != nil {
		return err
	}

	dim := len(vectors[0])
	ix, err := NewFlatIndex(dim)
	if err != nil {
		return err
	}
	if err := ix.Add(vectors); err != nil {
		return err
	}

	rows := make([]datatypes.MetadataRow, len(sorted))
	for i, doc := range sorted {
		rows[i] = datatypes.MetadataRow{
			DocID:     doc.DocID,
			SectionID: doc.SectionID,
			ChunkKind: doc.ChunkKind,
			SourceRef: doc.SourceRef,
			Text:      doc.Text,
			Title:     doc.Title,
		}
	}
	meta := datatypes.IndexMetadata{
		SchemaVersion:       datatypes.IndexSchemaVersion,
		CorpusSchemaVersion: datatypes.CorpusSchemaVersion,
		CorpusDigest:        corpus.Digest(sorted),
		DocCount:            len(sorted),
		EmbeddingModel:      model.Name(),
		Snapshot:            snapshot,
		Rows:                rows,
	}

	// Stage both files, then commit with two renames, sidecar first. A
	// failure before the first rename leaves the live pair in place; a
	// crash between the renames pairs the old vectors with the current
	// corpus rows rather than serving stale text for fresh vectors.
	indexTmp := indexPath + ".build"
	metaPath := MetaPath(indexPath)
	metaTmp := metaPath + ".build"
	if err := ix.WriteFile(indexTmp); err != nil {
		return err
	}
	if err := writeMetadata(meta, metaTmp); err != nil {
		os.Remove(indexTmp)
		return err
	}
	if err := os.Rename(metaTmp, metaPath); err != nil {
		os.Remove(indexTmp)
		os.Remove(metaTmp)
		return fmt.Errorf("commit index metadata: %w", err)
	}
	if err := os.Rename(indexTmp, indexPath); err != nil {
		os.Remove(indexTmp)
		return fmt.Errorf("commit index file: %w", err)
	}

	slog.Info("Index built",
		"path", indexPath,
		"documents", len(sorted),
		"dim", dim,
		"model", model.Name(),
		"digest", meta.CorpusDigest,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// embedAll embeds every document in fixed-size batches with bounded
// concurrency, preserving sorted order in the result.
func embedAll(ctx context.Context, model EmbeddingModel, docs []datatypes.CorpusDocument) ([][]float32, error) {
	vectors := make([][]float32, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for lo := 0; lo < len(docs); lo += embedBatchSize {
		lo := lo
		hi := min(lo+embedBatchSize, len(docs))
		g.Go(func() error {
			texts := make([]string, hi-lo)
			for i := lo; i < hi; i++ {
				texts[i-lo] = docs[i].Text
			}
			batch, err := model.Encode(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d]: %w", lo, hi, err)
			}
			copy(vectors[lo:hi], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("embed: vector %d has dim %d, expected %d", i, len(v), dim)
		}
	}
	return vectors, nil
}

// writeMetadata writes the sidecar atomically.
func writeMetadata(meta datatypes.IndexMetadata, path string) error {
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index metadata: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0640); err != nil {
		return fmt.Errorf("write index metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize index metadata: %w", err)
	}
	return nil
}

// readMetadata loads and shape-checks a sidecar file.
func readMetadata(path string) (*datatypes.IndexMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta datatypes.IndexMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse index metadata: %w", err)
	}
	if meta.SchemaVersion != datatypes.IndexSchemaVersion {
		return nil, fmt.Errorf("index metadata: schema_version %q, want %q", meta.SchemaVersion, datatypes.IndexSchemaVersion)
	}
	return &meta, nil
}
