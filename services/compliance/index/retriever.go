// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianComply/services/compliance/corpus"
	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
)

// embedRetryWaits are the waits between query-embedding attempts. The first
// attempt is immediate; four attempts total.
var embedRetryWaits = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// ============================================================================
// Errors
// ============================================================================

// IndexMissingError means no index exists at the configured path. The
// message tells the operator exactly how to produce one.
type IndexMissingError struct {
	Path string
}

// Error implements the error interface for IndexMissingError.
func (e *IndexMissingError) Error() string {
	return fmt.Sprintf("no index at %s: run `comply build-index` to create one", e.Path)
}

// IsIndexMissing checks if an error is an *IndexMissingError.
func IsIndexMissing(err error) bool {
	var ime *IndexMissingError
	return errors.As(err, &ime)
}

// PairingError means the index and its metadata sidecar disagree. Serving
// from a mismatched pair would attach the wrong text to the wrong vector,
// so the retriever refuses outright.
type PairingError struct {
	Reason string
}

// Error implements the error interface for PairingError.
func (e *PairingError) Error() string {
	return "index build required: " + e.Reason
}

// IsPairingError checks if an error is a *PairingError.
func IsPairingError(err error) bool {
	var pe *PairingError
	return errors.As(err, &pe)
}

// ============================================================================
// Structs
// ============================================================================

// Retriever answers nearest-neighbor queries over a loaded index.
//
// # Description
//
// The retriever owns the in-memory index and its metadata, guarded by a
// read-write lock: queries take the read lock, while Reload and
// AddDocuments take the write lock. Every load re-verifies the pairing
// invariants (row count, vector count, declared doc count, embedding model)
// before the index is allowed to serve.
//
// # Thread Safety
//
// Safe for concurrent use.
type Retriever struct {
	mu        sync.RWMutex
	ix        *FlatIndex
	meta      *datatypes.IndexMetadata
	model     EmbeddingModel
	indexPath string
}

// ============================================================================
// Constructor Functions
// ============================================================================

// NewRetriever loads the index at indexPath and verifies its pairing.
//
// # Outputs
//
//   - *Retriever: Ready to serve queries.
//   - error: *IndexMissingError when no index exists, *PairingError when
//     index and metadata disagree, or a read failure.
func NewRetriever(model EmbeddingModel, indexPath string) (*Retriever, error) {
	r := &Retriever{model: model, indexPath: indexPath}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// ============================================================================
// Methods
// ============================================================================

// Reload re-reads the index pair from disk, replacing the served index only
// after the new pair passes every pairing check. A failed reload leaves the
// previously loaded index serving.
func (r *Retriever) Reload() error {
	ix, meta, err := loadPair(r.indexPath, r.model)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.ix = ix
	r.meta = meta
	r.mu.Unlock()

	slog.Info("Index loaded",
		"path", r.indexPath,
		"documents", ix.Count(),
		"dim", ix.Dim(),
		"digest", meta.CorpusDigest,
	)
	return nil
}

// Meta returns a copy of the loaded metadata header (without rows).
func (r *Retriever) Meta() datatypes.IndexMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := *r.meta
	m.Rows = nil
	return m
}

// Count returns the number of retrievable documents.
func (r *Retriever) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ix.Count()
}

// Query embeds the question and returns the topK nearest documents.
//
// # Description
//
// The query embedding is retried on failure with 1s, 2s, and 4s waits
// before giving up, since a local embedding backend may be warming up.
// Scores are 1/(1+distance), so they fall in (0, 1] and are higher for
// closer matches. Hits whose internal id has no metadata row are skipped
// with a warning rather than served with fabricated text.
//
// # Inputs
//
//   - ctx: Cancels embedding waits and requests.
//   - question: Natural-language query text.
//   - topK: Number of candidates to return; must be positive.
//
// # Outputs
//
//   - []datatypes.RetrievedCandidate: Nearest documents, best first.
//   - error: Embedding failure after all retries, or a search failure.
func (r *Retriever) Query(ctx context.Context, question string, topK int) ([]datatypes.RetrievedCandidate, error) {
	if question == "" {
		return nil, fmt.Errorf("query: empty question")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("query: topK must be positive, got %d", topK)
	}

	qvec, err := r.embedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	hits, err := r.ix.Search(qvec, topK)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	candidates := make([]datatypes.RetrievedCandidate, 0, len(hits))
	for _, hit := range hits {
		if hit.ID < 0 || hit.ID >= len(r.meta.Rows) {
			slog.Warn("Skipping hit without metadata row", "id", hit.ID, "rows", len(r.meta.Rows))
			continue
		}
		row := r.meta.Rows[hit.ID]
		candidates = append(candidates, datatypes.RetrievedCandidate{
			SectionID: row.SectionID,
			Text:      row.Text,
			Score:     1.0 / (1.0 + float64(hit.Distance)),
			Row:       row,
		})
	}
	return candidates, nil
}

// AddDocuments rebuilds the index with the given documents added.
//
// # Description
//
// The flat index has no incremental update path: the merged corpus is
// re-validated, re-embedded, and written as a fresh pair, which the
// retriever then reloads. The write lock is held only for the final swap,
// so queries keep serving the old index during the rebuild.
func (r *Retriever) AddDocuments(ctx context.Context, docs []datatypes.CorpusDocument) error {
	if len(docs) == 0 {
		return fmt.Errorf("add documents: empty batch")
	}

	r.mu.RLock()
	existing := make([]datatypes.CorpusDocument, 0, len(r.meta.Rows)+len(docs))
	for _, row := range r.meta.Rows {
		existing = append(existing, datatypes.CorpusDocument{
			SchemaVersion: datatypes.CorpusSchemaVersion,
			DocID:         row.DocID,
			SectionID:     row.SectionID,
			ChunkKind:     row.ChunkKind,
			Source:        datatypes.SourceAPI,
			SourceRef:     row.SourceRef,
			Text:          row.Text,
			Title:         row.Title,
		})
	}
	r.mu.RUnlock()

	merged := append(existing, docs...)
	sort.Slice(merged, func(a, b int) bool { return merged[a].DocID < merged[b].DocID })
	if err := corpus.RequireValid(merged); err != nil {
		return err
	}

	if err := BuildIndex(ctx, merged, r.model, r.indexPath, nil); err != nil {
		return err
	}
	return r.Reload()
}

// embedQuery embeds one question with bounded retries.
func (r *Retriever) embedQuery(ctx context.Context, question string) ([]float32, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		vecs, err := r.model.Encode(ctx, []string{question})
		if err == nil {
			if len(vecs) != 1 {
				return nil, fmt.Errorf("embed query: got %d vectors for one text", len(vecs))
			}
			return vecs[0], nil
		}
		lastErr = err

		if attempt >= len(embedRetryWaits) {
			break
		}
		wait := embedRetryWaits[attempt]
		slog.Warn("Query embedding failed, retrying",
			"attempt", attempt+1,
			"wait", wait,
			"error", err,
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("embed query: %w", lastErr)
}

// loadPair reads and cross-checks an index file and its sidecar.
func loadPair(indexPath string, model EmbeddingModel) (*FlatIndex, *datatypes.IndexMetadata, error) {
	if _, err := os.Stat(indexPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil, &IndexMissingError{Path: indexPath}
	}

	ix, err := ReadFlatIndexFile(indexPath)
	if err != nil {
		return nil, nil, err
	}

	metaPath := MetaPath(indexPath)
	meta, err := readMetadata(metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, &PairingError{Reason: fmt.Sprintf("metadata sidecar %s is missing", metaPath)}
	}
	if err != nil {
		return nil, nil, err
	}

	if len(meta.Rows) != meta.DocCount {
		return nil, nil, &PairingError{
			Reason: fmt.Sprintf("metadata declares %d documents but carries %d rows", meta.DocCount, len(meta.Rows)),
		}
	}
	if ix.Count() != meta.DocCount {
		return nil, nil, &PairingError{
			Reason: fmt.Sprintf("index/meta size mismatch: %d vectors vs %d rows", ix.Count(), meta.DocCount),
		}
	}
	if model != nil && meta.EmbeddingModel != model.Name() {
		return nil, nil, &PairingError{
			Reason: fmt.Sprintf("index was built with model %q, retriever uses %q", meta.EmbeddingModel, model.Name()),
		}
	}
	return ix, meta, nil
}
